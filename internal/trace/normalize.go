package trace

import (
	"cmp"
	"slices"
)

// Clocks holds the epoch offset of each record stream. Offsets are added to
// every timestamp of the stream so that all three share one timeline.
type Clocks struct {
	Annotations Timestamp
	Launches    Timestamp
	Kernels     Timestamp
}

type resolver struct {
	table StringTable
	cache map[StringID]string
}

func (r *resolver) resolve(ref Ref, field string) (string, error) {
	if !ref.Interned {
		return ref.Text, nil
	}
	if s, ok := r.cache[ref.ID]; ok {
		return s, nil
	}
	if r.table == nil {
		return "", &UnresolvedReferenceError{ID: ref.ID, Field: field}
	}
	s, err := r.table.Resolve(ref.ID)
	if err != nil {
		return "", &UnresolvedReferenceError{ID: ref.ID, Field: field}
	}
	r.cache[ref.ID] = s
	return s, nil
}

func span(start, end, offset Timestamp, instant bool) (Timestamp, Timestamp, bool) {
	start += offset
	end += offset
	if instant || end < start {
		return start, start, true
	}
	return start, end, false
}

// Normalize moves raw records onto a single timeline, resolves their string
// references and returns them sorted ascending by start. The first string id
// missing from the table aborts normalization with an *UnresolvedReferenceError.
func Normalize(raw RawEvents, strs StringTable, clocks Clocks) (*Events, error) {
	r := &resolver{table: strs, cache: make(map[StringID]string)}
	ev := &Events{
		Annotations: make([]AnnotationRange, 0, len(raw.Annotations)),
		Launches:    make([]LaunchCall, 0, len(raw.Launches)),
		Kernels:     make([]KernelExec, 0, len(raw.Kernels)),
	}

	for _, a := range raw.Annotations {
		text, err := r.resolve(a.Text, "annotation text")
		if err != nil {
			return nil, err
		}
		start, end, instant := span(a.Start, a.End, clocks.Annotations, a.Instant || a.Kind == Mark)
		ev.Annotations = append(ev.Annotations, AnnotationRange{
			Interval: Interval{Start: start, End: end, Instant: instant, Thread: a.Thread, Label: text},
			Kind:     a.Kind,
			Domain:   a.Domain,
		})
	}

	for _, l := range raw.Launches {
		api, err := r.resolve(l.API, "launch api")
		if err != nil {
			return nil, err
		}
		start, end, instant := span(l.Start, l.End, clocks.Launches, false)
		ev.Launches = append(ev.Launches, LaunchCall{
			Interval:    Interval{Start: start, End: end, Instant: instant, Thread: l.Thread, Label: api},
			Correlation: l.Correlation,
			API:         api,
		})
	}

	for _, k := range raw.Kernels {
		short, err := r.resolve(k.ShortName, "kernel name")
		if err != nil {
			return nil, err
		}
		full, err := r.resolve(k.FullName, "kernel full name")
		if err != nil {
			return nil, err
		}
		if full == "" {
			full = short
		}
		if short == "" {
			short = full
		}
		start, end, instant := span(k.Start, k.End, clocks.Kernels, false)
		ev.Kernels = append(ev.Kernels, KernelExec{
			Interval: Interval{
				Start: start, End: end, Instant: instant,
				Device: k.Device, HasDevice: true, Label: short,
			},
			Correlation: k.Correlation,
			Stream:      k.Stream,
			FullName:    full,
		})
	}

	slices.SortStableFunc(ev.Annotations, func(a, b AnnotationRange) int { return cmp.Compare(a.Start, b.Start) })
	slices.SortStableFunc(ev.Launches, func(a, b LaunchCall) int { return cmp.Compare(a.Start, b.Start) })
	slices.SortStableFunc(ev.Kernels, func(a, b KernelExec) int { return cmp.Compare(a.Start, b.Start) })
	return ev, nil
}
