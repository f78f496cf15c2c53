// Package query combines a built hierarchy with a viewport to answer what
// the timeline shows, and runs the store to tree pipeline behind it.
package query

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

// AnnotationLane is the lane index of the primary thread's annotation ranges.
// GPU streams follow in ascending stream id.
const AnnotationLane = 0

// Row is one visible event.
type Row struct {
	ID       hierarchy.NodeID
	Label    string
	FullName string
	Start    trace.Timestamp
	End      trace.Timestamp
	Kind     hierarchy.NodeKind
	Depth    int
	Stream   trace.StreamID
	Lane     int
	Orphan   bool
}

func (r Row) Duration() trace.Timestamp { return r.End - r.Start }

// Lane is a horizontal track of the timeline.
type Lane struct {
	Name   string
	Stream trace.StreamID
	// IsStream is false for the annotation lane.
	IsStream bool
	MaxDepth int

	rows   []Row
	maxEnd []trace.Timestamp
}

func (l *Lane) Len() int { return len(l.rows) }

// Facade is the read surface over one tree. It is immutable and safe for
// concurrent readers.
type Facade struct {
	tree  *hierarchy.Tree
	lanes []Lane
}

// New indexes the tree by lane.
func New(tree *hierarchy.Tree) *Facade {
	f := &Facade{tree: tree}
	f.lanes = append(f.lanes, Lane{Name: "annotations"})
	byStream := make(map[trace.StreamID][]Row)
	for id, n := range tree.All() {
		switch n.Kind {
		case hierarchy.KindAnnotation:
			start, end := n.CPU.Start, n.CPU.End
			if n.HasGPU {
				start, end = n.GPU.Start, n.GPU.End
			}
			f.lanes[AnnotationLane].rows = append(f.lanes[AnnotationLane].rows, Row{
				ID: id, Label: n.Label, Start: start, End: end,
				Kind: n.Kind, Depth: n.Depth, Lane: AnnotationLane,
			})
			f.lanes[AnnotationLane].MaxDepth = max(f.lanes[AnnotationLane].MaxDepth, n.Depth)
		case hierarchy.KindKernel:
			byStream[n.Stream] = append(byStream[n.Stream], Row{
				ID: id, Label: n.Label, FullName: n.FullName, Start: n.Start, End: n.End,
				Kind: n.Kind, Depth: n.Depth, Stream: n.Stream, Orphan: n.Orphan,
			})
		}
	}
	streams := make([]trace.StreamID, 0, len(byStream))
	for s := range byStream {
		streams = append(streams, s)
	}
	slices.Sort(streams)
	for _, s := range streams {
		lane := Lane{Name: fmt.Sprintf("stream %d", s), Stream: s, IsStream: true, rows: byStream[s]}
		for i := range lane.rows {
			lane.rows[i].Lane = len(f.lanes)
		}
		f.lanes = append(f.lanes, lane)
	}
	for i := range f.lanes {
		f.lanes[i].index()
	}
	return f
}

func (l *Lane) index() {
	slices.SortStableFunc(l.rows, func(a, b Row) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Depth, b.Depth)
	})
	l.maxEnd = make([]trace.Timestamp, len(l.rows))
	running := trace.MinTimestamp
	for i, r := range l.rows {
		running = max(running, r.End)
		l.maxEnd[i] = running
	}
}

func (f *Facade) Tree() *hierarchy.Tree { return f.tree }

func (f *Facade) Lanes() []Lane { return f.lanes }

func (f *Facade) NumLanes() int { return len(f.lanes) }

func (f *Facade) Lane(i int) (*Lane, bool) {
	if i < 0 || i >= len(f.lanes) {
		return nil, false
	}
	return &f.lanes[i], true
}

// Extent is the time range covered by every lane.
func (f *Facade) Extent() trace.Window {
	w := trace.Window{Start: trace.MaxTimestamp, End: trace.MinTimestamp}
	for i := range f.lanes {
		l := &f.lanes[i]
		if len(l.rows) == 0 {
			continue
		}
		w.Start = min(w.Start, l.rows[0].Start)
		w.End = max(w.End, l.maxEnd[len(l.maxEnd)-1])
	}
	if !w.Valid() {
		root := f.tree.Root()
		return trace.Window{Start: root.Start, End: max(root.End, root.Start+1)}
	}
	return w
}

// KernelPath is hierarchy.Tree.KernelPath.
func (f *Facade) KernelPath(key trace.CorrelationKey) ([]string, bool) {
	return f.tree.KernelPath(key)
}

// Status reports recoverable problems of the underlying tree.
func (f *Facade) Status() string { return f.tree.Status() }

func keep(r *Row, vp *viewport.State) bool {
	if vp.MinDuration > 0 && r.Duration() < vp.MinDuration {
		return false
	}
	return vp.Filter.Match(r.Label, r.FullName)
}

// Visible yields the rows that intersect the viewport window and pass its
// filters, lane by lane and in start order within a lane. Without explicit
// lanes only the selected lane is queried. The sequence can be ranged over
// any number of times; it reads vp on every iteration.
func (f *Facade) Visible(vp *viewport.State, lanes ...int) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		selected := lanes
		if len(selected) == 0 {
			selected = []int{vp.Stream}
		}
		w := vp.Window
		for _, li := range selected {
			l, ok := f.Lane(li)
			if !ok {
				continue
			}
			first := sort.Search(len(l.maxEnd), func(i int) bool { return l.maxEnd[i] >= w.Start })
			for i := first; i < len(l.rows) && l.rows[i].Start <= w.End; i++ {
				r := &l.rows[i]
				if r.End < w.Start || !keep(r, vp) {
					continue
				}
				if !yield(*r) {
					return
				}
			}
		}
	}
}

// AllLanes returns the index of every lane, for use with Visible.
func (f *Facade) AllLanes() []int {
	out := make([]int, len(f.lanes))
	for i := range out {
		out[i] = i
	}
	return out
}

// At returns row i of lane in lane order, the index space of viewport.State.Event.
func (f *Facade) At(lane, i int) (Row, bool) {
	l, ok := f.Lane(lane)
	if !ok || i < 0 || i >= len(l.rows) {
		return Row{}, false
	}
	return l.rows[i], true
}

// Nearest returns the event on lane that contains t, or the one whose start
// is closest to t. Filters of vp apply.
func (f *Facade) Nearest(vp *viewport.State, lane int, t trace.Timestamp) (Row, bool) {
	l, ok := f.Lane(lane)
	if !ok || len(l.rows) == 0 {
		return Row{}, false
	}
	var (
		best     Row
		bestDist trace.Timestamp = -1
	)
	first := sort.Search(len(l.maxEnd), func(i int) bool { return l.maxEnd[i] >= t })
	for i := first; i < len(l.rows) && l.rows[i].Start <= t; i++ {
		r := &l.rows[i]
		if r.End >= t && keep(r, vp) {
			// deepest containing row wins
			if bestDist != 0 || r.Depth > best.Depth {
				best, bestDist = *r, 0
			}
		}
	}
	if bestDist == 0 {
		return best, true
	}
	if i, ok := f.step(l, vp, t, viewport.NoEvent, viewport.Forward); ok {
		best, bestDist = l.rows[i], l.rows[i].Start-t
	}
	if i, ok := f.step(l, vp, t, viewport.NoEvent, viewport.Backward); ok {
		if d := t - l.rows[i].Start; bestDist < 0 || d < bestDist {
			best, bestDist = l.rows[i], d
		}
	}
	return best, bestDist >= 0
}

// step returns the index of the row next to row from in direction dir.
// Rows sharing a start time are visited in lane order. Without a valid from
// it starts at the first row after t or the last row before t.
func (f *Facade) step(l *Lane, vp *viewport.State, t trace.Timestamp, from int, dir viewport.Direction) (int, bool) {
	var i int
	switch {
	case from >= 0 && from < len(l.rows) && l.rows[from].Start == t:
		i = from + int(dir)
	case dir == viewport.Forward:
		i = sort.Search(len(l.rows), func(i int) bool { return l.rows[i].Start > t })
	default:
		i = sort.Search(len(l.rows), func(i int) bool { return l.rows[i].Start >= t }) - 1
	}
	for ; i >= 0 && i < len(l.rows); i += int(dir) {
		if keep(&l.rows[i], vp) {
			return i, true
		}
	}
	return viewport.NoEvent, false
}

type locator struct {
	f  *Facade
	vp viewport.State
}

func (l locator) Step(lane int, t trace.Timestamp, from int, dir viewport.Direction) (viewport.Event, bool) {
	ln, ok := l.f.Lane(lane)
	if !ok {
		return viewport.Event{}, false
	}
	i, ok := l.f.step(ln, &l.vp, t, from, dir)
	if !ok {
		return viewport.Event{}, false
	}
	r := &ln.rows[i]
	return viewport.Event{Window: trace.Window{Start: r.Start, End: r.End}, Index: i}, true
}

// Locator returns an EventLocator for SnapToEvent honoring the filters of vp.
func (f *Facade) Locator(vp *viewport.State) viewport.EventLocator {
	return locator{f: f, vp: *vp}
}
