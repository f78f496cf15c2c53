package trace

import (
	"context"
	"slices"
)

// MemStore is a Store over records held in memory.
type MemStore struct {
	Raw     RawEvents
	Strings Strings
	Names   map[DeviceID]string
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Resolve(id StringID) (string, error) { return s.Strings.Resolve(id) }

func (s *MemStore) Meta(ctx context.Context) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	m := Meta{
		Kernels:     len(s.Raw.Kernels),
		Annotations: len(s.Raw.Annotations),
		Launches:    len(s.Raw.Launches),
		Extent:      Window{Start: MaxTimestamp, End: MinTimestamp},
	}
	byDevice := make(map[DeviceID]*DeviceInfo)
	for _, k := range s.Raw.Kernels {
		d, ok := byDevice[k.Device]
		if !ok {
			d = &DeviceInfo{ID: k.Device, Name: s.Names[k.Device]}
			byDevice[k.Device] = d
		}
		d.Kernels++
		if !slices.Contains(d.Streams, k.Stream) {
			d.Streams = append(d.Streams, k.Stream)
		}
		m.Extent.Start = min(m.Extent.Start, k.Start)
		m.Extent.End = max(m.Extent.End, k.End)
	}
	if len(s.Raw.Kernels) == 0 {
		m.Extent = Window{}
	}
	for _, d := range byDevice {
		slices.Sort(d.Streams)
		m.Devices = append(m.Devices, *d)
	}
	slices.SortFunc(m.Devices, func(a, b DeviceInfo) int { return int(a.ID) - int(b.ID) })
	return m, nil
}

func (s *MemStore) QueryAnnotations(ctx context.Context, q Query) ([]RawAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []RawAnnotation
	for _, a := range s.Raw.Annotations {
		if !q.Window.Intersects(a.Start, max(a.Start, a.End)) {
			continue
		}
		if q.HasThread && a.Thread != q.Thread {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *MemStore) QueryLaunchCalls(ctx context.Context, q Query) ([]RawLaunch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []RawLaunch
	for _, l := range s.Raw.Launches {
		if !q.Window.Intersects(l.Start, l.End) {
			continue
		}
		if q.HasThread && l.Thread != q.Thread {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *MemStore) QueryKernelExecs(ctx context.Context, q Query) ([]RawKernel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []RawKernel
	for _, k := range s.Raw.Kernels {
		if !q.Window.Intersects(k.Start, k.End) {
			continue
		}
		if q.HasDevice && k.Device != q.Device {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
