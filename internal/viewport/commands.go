package viewport

import (
	"fmt"
	"math"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

// Command is a discrete navigation step. Commands are applied through State.Apply.
type Command interface {
	apply(s *State) error
}

// Event is an event found by an EventLocator. Index is its position in the
// lane order and tells apart events that start at the same time.
type Event struct {
	trace.Window
	Index int
}

// EventLocator finds events on a lane relative to a point in time.
type EventLocator interface {
	// Step returns the event next to the one at index from in direction dir.
	// When from is negative or that event does not start at t, it returns the
	// first event starting after t (Forward) or the last one starting before
	// t (Backward).
	Step(lane int, t trace.Timestamp, from int, dir Direction) (Event, bool)
}

// Pan shifts the window by Delta nanoseconds without changing its width.
type Pan struct{ Delta trace.Timestamp }

func (c Pan) apply(s *State) error {
	old := s.Window
	s.Window = s.clampWindow(trace.Window{Start: old.Start + c.Delta, End: old.End + c.Delta})
	moved := s.Window.Start - old.Start
	s.Cursor = min(max(s.Cursor+moved, s.Window.Start), s.Window.End)
	return nil
}

// PagePan pans by a quarter of the window width.
type PagePan struct{ Direction Direction }

func (c PagePan) apply(s *State) error {
	step := max(s.Window.Width()/4, 1)
	return Pan{Delta: step * trace.Timestamp(c.Direction)}.apply(s)
}

// Zoom divides the window width by Factor around the cursor, keeping the
// cursor at the same relative position on screen.
type Zoom struct{ Factor float64 }

func (c Zoom) apply(s *State) error {
	if !validZoom(c.Factor) {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, c.Factor)
	}
	old := s.Window
	width := trace.Timestamp(math.Round(float64(old.Width()) / c.Factor))
	width = min(max(width, s.minWidth()), s.Extent.Width())

	cursor := min(max(s.Cursor, old.Start), old.End)
	ratio := float64(cursor-old.Start) / float64(old.Width())
	start := cursor - trace.Timestamp(math.Round(ratio*float64(width)))
	s.Window = s.clampWindow(trace.Window{Start: start, End: start + width})
	s.Cursor = min(max(s.Cursor, s.Window.Start), s.Window.End)
	return nil
}

// ZoomToFit shows the whole extent.
type ZoomToFit struct{}

func (ZoomToFit) apply(s *State) error {
	s.Window = s.Extent
	return nil
}

// SelectStream moves the lane selection by Delta, stopping at either end.
type SelectStream struct{ Delta int }

func (c SelectStream) apply(s *State) error {
	if next := s.clampStream(s.Stream + c.Delta); next != s.Stream {
		s.Stream = next
		s.Event = NoEvent
	}
	return nil
}

// SnapToEvent centers the window on the next or previous event of the
// selected lane and puts the cursor at its start.
type SnapToEvent struct {
	Direction Direction
	Events    EventLocator
}

func (c SnapToEvent) apply(s *State) error {
	if c.Events == nil {
		return ErrNoEvent
	}
	ev, ok := c.Events.Step(s.Stream, s.Cursor, s.Event, c.Direction)
	if !ok {
		return ErrNoEvent
	}
	mid := ev.Start + (ev.End-ev.Start)/2
	if ev.End-ev.Start > s.Window.Width() {
		mid = ev.Start
	}
	s.centerOn(mid)
	s.Cursor = s.clampCursor(ev.Start)
	s.Event = ev.Index
	return nil
}

// MoveCursor moves the cursor by Delta. The window follows when the cursor leaves it.
type MoveCursor struct{ Delta trace.Timestamp }

func (c MoveCursor) apply(s *State) error {
	s.Cursor = s.clampCursor(s.Cursor + c.Delta)
	s.Event = NoEvent
	if !s.Window.Contains(s.Cursor) {
		s.centerOn(s.Cursor)
	}
	return nil
}

// JumpToEdge puts the cursor at the start or end of the extent.
type JumpToEdge struct{ Direction Direction }

func (c JumpToEdge) apply(s *State) error {
	if c.Direction < 0 {
		s.Cursor = s.Extent.Start
	} else {
		s.Cursor = s.Extent.End
	}
	s.Event = NoEvent
	s.centerOn(s.Cursor)
	return nil
}

// SaveBookmark stores the current position in Slot, replacing what was there.
type SaveBookmark struct {
	Slot  int
	Label string
}

func (c SaveBookmark) apply(s *State) error {
	if c.Slot < 1 || c.Slot > MaxBookmarks {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, c.Slot)
	}
	label := c.Label
	if label == "" {
		label = fmt.Sprintf("#%d", c.Slot)
	}
	s.bookmarks[c.Slot-1] = Bookmark{
		Slot:   c.Slot,
		Label:  label,
		Window: s.Window,
		Cursor: s.Cursor,
		Stream: s.Stream,
	}
	s.saved[c.Slot-1] = true
	s.lastBookmark = c.Slot - 1
	return nil
}

// DeleteBookmark clears Slot.
type DeleteBookmark struct{ Slot int }

func (c DeleteBookmark) apply(s *State) error {
	if c.Slot < 1 || c.Slot > MaxBookmarks {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, c.Slot)
	}
	s.bookmarks[c.Slot-1] = Bookmark{}
	s.saved[c.Slot-1] = false
	return nil
}

// JumpToBookmark restores the position saved in Slot. The position left
// behind becomes the back history.
type JumpToBookmark struct{ Slot int }

func (c JumpToBookmark) apply(s *State) error {
	if c.Slot < 1 || c.Slot > MaxBookmarks {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, c.Slot)
	}
	if !s.saved[c.Slot-1] {
		return fmt.Errorf("%w in slot %d", ErrNoBookmark, c.Slot)
	}
	b := s.bookmarks[c.Slot-1]
	s.back, s.hasBack = s.position(), true
	s.restore(position{window: b.Window, cursor: b.Cursor, stream: b.Stream})
	s.lastBookmark = c.Slot - 1
	return nil
}

// CycleBookmark jumps to the next or previous saved bookmark, wrapping around.
type CycleBookmark struct{ Direction Direction }

func (c CycleBookmark) apply(s *State) error {
	step := 1
	if c.Direction < 0 {
		step = -1
	}
	i := s.lastBookmark
	if i < 0 && step < 0 {
		i = 0
	}
	for range MaxBookmarks {
		i = ((i+step)%MaxBookmarks + MaxBookmarks) % MaxBookmarks
		if s.saved[i] {
			return JumpToBookmark{Slot: i + 1}.apply(s)
		}
	}
	return ErrNoBookmark
}

// JumpBack swaps the current position with the back history. It does
// nothing when there is no history.
type JumpBack struct{}

func (JumpBack) apply(s *State) error {
	if !s.hasBack {
		return nil
	}
	prev := s.back
	s.back = s.position()
	s.restore(prev)
	return nil
}

// SetFilter replaces the active label filter. An empty pattern clears it.
type SetFilter struct{ Pattern string }

func (c SetFilter) apply(s *State) error {
	s.Filter = NewFilter(c.Pattern)
	return nil
}

// SetMinDuration hides events shorter than Threshold from visible queries.
type SetMinDuration struct{ Threshold trace.Timestamp }

func (c SetMinDuration) apply(s *State) error {
	s.MinDuration = max(c.Threshold, 0)
	return nil
}

type CycleTickDensity struct{}

func (CycleTickDensity) apply(s *State) error {
	s.Density = s.Density.Next()
	return nil
}

// Resize moves the state onto a new extent and lane count, e.g. after a
// rebuild. The window is kept where it still fits.
type Resize struct {
	Extent  trace.Window
	Streams int
}

func (c Resize) apply(s *State) error {
	if !c.Extent.Valid() {
		return ErrNoExtent
	}
	s.Extent = c.Extent
	s.Event = NoEvent
	s.Streams = max(c.Streams, 0)
	s.Stream = s.clampStream(s.Stream)
	if s.Window.End <= s.Extent.Start || s.Window.Start >= s.Extent.End {
		s.Window = s.Extent
	} else {
		s.Window = s.clampWindow(trace.Window{
			Start: max(s.Window.Start, s.Extent.Start),
			End:   min(s.Window.End, s.Extent.End),
		})
	}
	s.Cursor = min(max(s.Cursor, s.Window.Start), s.Window.End)
	return nil
}
