package query

import (
	"cmp"
	"slices"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

type StreamStat struct {
	Stream  trace.StreamID
	Kernels int
	Total   trace.Timestamp
}

// Summary describes GPU activity of one tree.
type Summary struct {
	Device      trace.DeviceInfo
	Kernels     int
	Span        trace.Timestamp
	Compute     trace.Timestamp
	Idle        trace.Timestamp
	Utilization float64
	TopKernels  []KernelStat
	Streams     []StreamStat
	Status      string
}

// Summarize computes kernel timing over the whole tree. Idle time counts
// the gaps during which no kernel was running on any stream.
func Summarize(f *Facade, device trace.DeviceInfo, topK int) Summary {
	s := Summary{Device: device, Status: f.Status()}

	var kernels []Row
	byStream := make(map[trace.StreamID]*StreamStat)
	for i := range f.lanes {
		l := &f.lanes[i]
		if !l.IsStream {
			continue
		}
		st := &StreamStat{Stream: l.Stream}
		byStream[l.Stream] = st
		for _, r := range l.rows {
			kernels = append(kernels, r)
			st.Kernels++
			st.Total += r.Duration()
			s.Compute += r.Duration()
		}
	}
	s.Kernels = len(kernels)
	if len(kernels) == 0 {
		return s
	}

	slices.SortFunc(kernels, func(a, b Row) int { return cmp.Compare(a.Start, b.Start) })
	first, last := kernels[0].Start, kernels[0].End
	maxEnd := kernels[0].End
	for _, k := range kernels[1:] {
		if k.Start > maxEnd {
			s.Idle += k.Start - maxEnd
		}
		maxEnd = max(maxEnd, k.End)
		last = max(last, k.End)
	}
	s.Span = last - first
	if s.Span > 0 {
		s.Utilization = 100 * float64(s.Compute) / float64(s.Span)
	}

	s.TopKernels = TopKernels(topK, slices.Values(kernels))
	for _, st := range byStream {
		s.Streams = append(s.Streams, *st)
	}
	slices.SortFunc(s.Streams, func(a, b StreamStat) int { return cmp.Compare(a.Stream, b.Stream) })
	return s
}

// Match is one kernel found by Search.
type Match struct {
	ID     hierarchy.NodeID
	Kernel Row
	Path   []string
}

// Search returns the kernels whose label or full name matches child and
// that have at least one enclosing annotation matching parent. An empty
// parent pattern matches every kernel, including those outside any annotation.
func (f *Facade) Search(parent, child string) []Match {
	parentFilter := viewport.NewFilter(parent)
	childFilter := viewport.NewFilter(child)
	var out []Match
	for i := range f.lanes {
		l := &f.lanes[i]
		if !l.IsStream {
			continue
		}
		for _, r := range l.rows {
			if !childFilter.Match(r.Label, r.FullName) {
				continue
			}
			path := f.tree.Path(r.ID)
			if parent != "" && !slices.ContainsFunc(path, func(p string) bool { return parentFilter.Match(p) }) {
				continue
			}
			out = append(out, Match{ID: r.ID, Kernel: r, Path: path})
		}
	}
	slices.SortStableFunc(out, func(a, b Match) int { return cmp.Compare(a.Kernel.Start, b.Kernel.Start) })
	return out
}
