// Package trace holds the normalized event model shared by every stage of the
// kernel hierarchy pipeline: annotation ranges, launch calls and kernel
// executions on a single nanosecond timeline.
package trace

import (
	"fmt"
	"math"
	"time"
)

// Timestamp is a point on the normalized timeline, in nanoseconds.
type Timestamp int64

const (
	MinTimestamp Timestamp = math.MinInt64
	MaxTimestamp Timestamp = math.MaxInt64
)

// Duration converts a span of nanoseconds into a time.Duration.
func (ts Timestamp) Duration() time.Duration { return time.Duration(ts) }

type (
	ThreadID       uint64
	DeviceID       uint32
	StreamID       uint32
	CorrelationKey uint64
	StringID       uint64
	DomainID       uint64
)

// Window is a closed time range [Start, End].
type Window struct {
	Start Timestamp
	End   Timestamp
}

func (w Window) Width() Timestamp { return w.End - w.Start }

func (w Window) Valid() bool { return w.End > w.Start }

func (w Window) Contains(ts Timestamp) bool { return ts >= w.Start && ts <= w.End }

// Intersects reports whether [start, end] shares at least one point with w.
func (w Window) Intersects(start, end Timestamp) bool {
	return start <= w.End && end >= w.Start
}

// Union returns the smallest window covering both w and o.
func (w Window) Union(o Window) Window {
	return Window{Start: min(w.Start, o.Start), End: max(w.End, o.End)}
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.Start, w.End)
}

// Interval is the base shape of every event. Instant events have End == Start.
type Interval struct {
	Start     Timestamp
	End       Timestamp
	Instant   bool
	Thread    ThreadID
	Device    DeviceID
	HasDevice bool
	Label     string
}

func (iv Interval) Duration() Timestamp { return iv.End - iv.Start }

// Contains uses closed-interval semantics: an interval contains itself.
func (iv Interval) Contains(o Interval) bool {
	return iv.Start <= o.Start && o.End <= iv.End
}

func (iv Interval) Window() Window { return Window{Start: iv.Start, End: iv.End} }

type AnnotationKind uint8

const (
	PushPop AnnotationKind = iota
	StartEnd
	Mark
)

func (k AnnotationKind) String() string {
	switch k {
	case PushPop:
		return "push/pop"
	case StartEnd:
		return "start/end"
	case Mark:
		return "mark"
	default:
		return fmt.Sprintf("AnnotationKind(%d)", uint8(k))
	}
}

// AnnotationRange is a labeled CPU region recorded by the application or a framework.
type AnnotationRange struct {
	Interval
	Kind   AnnotationKind
	Domain DomainID
}

// LaunchCall is a CPU-side API call that asked the GPU to do work.
type LaunchCall struct {
	Interval
	Correlation CorrelationKey
	API         string
}

// KernelExec is a kernel execution on a GPU stream. Label holds the short name.
type KernelExec struct {
	Interval
	Correlation CorrelationKey
	Stream      StreamID
	FullName    string
}

// Events is the output of Normalize. Each slice is sorted ascending by start.
type Events struct {
	Annotations []AnnotationRange
	Launches    []LaunchCall
	Kernels     []KernelExec
}

// Extent returns the window covered by all kernels, or false if there are none.
func (ev *Events) Extent() (Window, bool) {
	if ev == nil || len(ev.Kernels) == 0 {
		return Window{}, false
	}
	w := Window{Start: MaxTimestamp, End: MinTimestamp}
	for _, k := range ev.Kernels {
		w.Start = min(w.Start, k.Start)
		w.End = max(w.End, k.End)
	}
	return w, true
}

// FormatDuration renders a nanosecond span in the unit that keeps it readable.
func FormatDuration(ns Timestamp) string {
	ms := float64(ns) / 1e6
	switch {
	case ms >= 1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	case ms >= 1:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%.0fµs", ms*1000)
	}
}

// FormatTimestamp renders an absolute timestamp as seconds.
func FormatTimestamp(ts Timestamp) string {
	return fmt.Sprintf("%.3fs", float64(ts)/1e9)
}

// FormatRelative renders an offset from the start of a window, e.g. "+1.5s" or "+20ms".
func FormatRelative(offset Timestamp) string {
	s := float64(offset) / 1e9
	switch {
	case s < 0.001:
		return "+0"
	case s >= 0.1:
		return fmt.Sprintf("+%.1fs", s)
	default:
		return fmt.Sprintf("+%.0fms", s*1000)
	}
}
