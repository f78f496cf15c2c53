// Package viewport is the navigation state of the timeline: the visible
// window, the cursor, the selected lane, bookmarks and display filters.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const (
	MaxBookmarks     = 9
	DefaultMinWindow = trace.Timestamp(100)
	// NoEvent is the Event of a state whose cursor was not placed by SnapToEvent.
	NoEvent          = -1
)

var (
	ErrInvalidSlot = errors.New("bookmark slot must be in [1,9]")
	ErrNoBookmark  = errors.New("no bookmark saved")
	ErrInvalidZoom = errors.New("zoom factor must be a positive number")
	ErrNoEvent     = errors.New("no event in that direction")
	ErrNoExtent    = errors.New("trace extent is empty")
)

type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

// TickDensity is the number of axis labels drawn across the window.
type TickDensity uint8

const (
	TicksSparse TickDensity = iota
	TicksNormal
	TicksDense
	TicksDensest
	numDensities
)

var tickCounts = [numDensities]int{3, 6, 10, 15}

func (d TickDensity) Count() int { return tickCounts[d%numDensities] }

func (d TickDensity) Next() TickDensity { return (d + 1) % numDensities }

func (d TickDensity) String() string { return fmt.Sprintf("%d ticks", d.Count()) }

// Bookmark is a saved position.
type Bookmark struct {
	Slot   int
	Label  string
	Window trace.Window
	Cursor trace.Timestamp
	Stream int
}

type position struct {
	window trace.Window
	cursor trace.Timestamp
	stream int
}

// State is the full viewport configuration. It is a value type: Apply
// mutates a copy and commits it only when every command succeeds.
type State struct {
	Window      trace.Window
	Extent      trace.Window
	Cursor      trace.Timestamp
	Stream      int
	Streams     int
	Density     TickDensity
	Filter      Filter
	MinDuration trace.Timestamp
	MinWindow   trace.Timestamp
	// Event is the lane order index of the event the last snap landed on.
	Event       int

	bookmarks    [MaxBookmarks]Bookmark
	saved        [MaxBookmarks]bool
	lastBookmark int
	back         position
	hasBack      bool
}

// New returns a state showing the whole extent with the cursor at its center.
func New(extent trace.Window, streams int) State {
	if !extent.Valid() {
		extent.End = extent.Start + 1
	}
	s := State{
		Window:       extent,
		Extent:       extent,
		Cursor:       extent.Start + extent.Width()/2,
		Streams:      max(streams, 0),
		Density:      TicksNormal,
		MinWindow:    DefaultMinWindow,
		Event:        NoEvent,
		lastBookmark: -1,
	}
	return s
}

// ZoomFactor is how many times the window fits into the extent.
func (s *State) ZoomFactor() float64 {
	if !s.Window.Valid() {
		return 1
	}
	return float64(s.Extent.Width()) / float64(s.Window.Width())
}

// Bookmarks returns the saved bookmarks ordered by slot.
func (s *State) Bookmarks() []Bookmark {
	var out []Bookmark
	for i := range s.bookmarks {
		if s.saved[i] {
			out = append(out, s.bookmarks[i])
		}
	}
	return out
}

func (s *State) Bookmark(slot int) (Bookmark, bool) {
	if slot < 1 || slot > MaxBookmarks || !s.saved[slot-1] {
		return Bookmark{}, false
	}
	return s.bookmarks[slot-1], true
}

// HasBack reports whether JumpBack would move.
func (s *State) HasBack() bool { return s.hasBack }

// Ticks returns evenly spaced axis positions across the window, both edges included.
func (s *State) Ticks() []trace.Timestamp {
	n := s.Density.Count()
	out := make([]trace.Timestamp, n)
	w := s.Window.Width()
	for i := range n {
		if n == 1 {
			out[i] = s.Window.Start
			continue
		}
		out[i] = s.Window.Start + trace.Timestamp(float64(w)*float64(i)/float64(n-1))
	}
	return out
}

// Apply runs cmds in order. Either all of them take effect or none does.
func (s *State) Apply(cmds ...Command) error {
	next := *s
	for _, c := range cmds {
		if err := c.apply(&next); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// Validate checks the state invariants.
func (s *State) Validate() error {
	switch {
	case !s.Extent.Valid():
		return ErrNoExtent
	case !s.Window.Valid():
		return fmt.Errorf("empty window %s", s.Window)
	case s.Window.Start < s.Extent.Start || s.Window.End > s.Extent.End:
		return fmt.Errorf("window %s outside extent %s", s.Window, s.Extent)
	case s.Streams > 0 && (s.Stream < 0 || s.Stream >= s.Streams):
		return fmt.Errorf("stream %d out of range [0,%d)", s.Stream, s.Streams)
	case s.MinDuration < 0:
		return fmt.Errorf("negative minimum duration %d", s.MinDuration)
	}
	return nil
}

func (s *State) minWidth() trace.Timestamp {
	return max(1, min(s.MinWindow, s.Extent.Width()))
}

// clampWindow keeps w inside the extent, shrinking it only when it is wider.
func (s *State) clampWindow(w trace.Window) trace.Window {
	width := min(max(w.Width(), s.minWidth()), s.Extent.Width())
	w.End = w.Start + width
	if w.Start < s.Extent.Start {
		w.Start, w.End = s.Extent.Start, s.Extent.Start+width
	}
	if w.End > s.Extent.End {
		w.Start, w.End = s.Extent.End-width, s.Extent.End
	}
	return w
}

func (s *State) clampCursor(t trace.Timestamp) trace.Timestamp {
	return min(max(t, s.Extent.Start), s.Extent.End)
}

// centerOn moves the window so that t is in its middle, keeping the width.
func (s *State) centerOn(t trace.Timestamp) {
	width := s.Window.Width()
	s.Window = s.clampWindow(trace.Window{Start: t - width/2, End: t - width/2 + width})
}

func (s *State) position() position {
	return position{window: s.Window, cursor: s.Cursor, stream: s.Stream}
}

func (s *State) restore(p position) {
	s.Window = s.clampWindow(p.window)
	s.Cursor = s.clampCursor(p.cursor)
	s.Stream = s.clampStream(p.stream)
	s.Event = NoEvent
}

func (s *State) clampStream(i int) int {
	if s.Streams <= 0 {
		return 0
	}
	return min(max(i, 0), s.Streams-1)
}

func validZoom(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
