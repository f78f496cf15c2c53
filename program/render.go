package main

import (
	"strings"
	"unicode/utf8"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/query"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

const (
	kernelCell     = '█'
	orphanCell     = '▒'
	annotationCell = '─'
	cursorCell     = '│'
	emptyCell      = ' '
)

// column maps t to a cell in [0,width).
func column(t trace.Timestamp, w trace.Window, width int) int {
	if width <= 1 || !w.Valid() {
		return 0
	}
	c := int(float64(t-w.Start) / float64(w.Width()) * float64(width-1))
	return min(max(c, 0), width-1)
}

func blankLine(width int) []rune {
	line := make([]rune, width)
	for i := range line {
		line[i] = emptyCell
	}
	return line
}

// paint draws r into line, with its label when the bar is wide enough.
func paint(line []rune, r query.Row, w trace.Window, demangled bool) {
	width := len(line)
	c0, c1 := column(r.Start, w, width), column(r.End, w, width)
	fill := kernelCell
	switch {
	case r.Kind == hierarchy.KindAnnotation:
		fill = annotationCell
	case r.Orphan:
		fill = orphanCell
	}
	for c := c0; c <= c1; c++ {
		line[c] = fill
	}
	label := r.Label
	if demangled && r.FullName != "" {
		label = r.FullName
	}
	if n := utf8.RuneCountInString(label); c1-c0+1 >= n+2 {
		i := c0 + 1
		for _, ch := range label {
			line[i] = ch
			i++
		}
	}
}

// laneLines renders lane li. The annotation lane gets one line per nesting
// level up to maxDepth, stream lanes get a single line.
func laneLines(f *query.Facade, vp *viewport.State, li, width, maxDepth int, demangled bool) []string {
	l, ok := f.Lane(li)
	if !ok || width < 1 {
		return nil
	}
	rows := 1
	if !l.IsStream {
		rows = max(1, min(l.MaxDepth, maxDepth))
	}
	lines := make([][]rune, rows)
	for i := range lines {
		lines[i] = blankLine(width)
	}
	for r := range f.Visible(vp, li) {
		i := 0
		if !l.IsStream {
			i = r.Depth - 1
			if i < 0 || i >= rows {
				continue
			}
		}
		paint(lines[i], r, vp.Window, demangled)
	}
	out := make([]string, rows)
	cur := column(vp.Cursor, vp.Window, width)
	for i, line := range lines {
		if vp.Window.Contains(vp.Cursor) && line[cur] == emptyCell {
			line[cur] = cursorCell
		}
		out[i] = string(line)
	}
	return out
}

// axisLine places one label per tick, dropping labels that would overlap.
func axisLine(vp *viewport.State, width int, relative bool) string {
	line := blankLine(width)
	next := 0
	for _, t := range vp.Ticks() {
		label := trace.FormatTimestamp(t)
		if relative {
			label = trace.FormatRelative(t - vp.Window.Start)
		}
		n := utf8.RuneCountInString(label)
		c := column(t, vp.Window, width)
		c = min(c, width-n)
		if c < next || c < 0 {
			continue
		}
		i := c
		for _, ch := range label {
			line[i] = ch
			i++
		}
		next = c + n + 1
	}
	return string(line)
}

// cursorLine marks the cursor column.
func cursorLine(vp *viewport.State, width int) string {
	if width < 1 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", column(vp.Cursor, vp.Window, width)))
	sb.WriteRune('▼')
	return sb.String()
}

// busySeries counts the kernels running at n evenly spaced instants of the
// window, over all stream lanes.
func busySeries(f *query.Facade, vp *viewport.State, n int) []float64 {
	series := make([]float64, n)
	if n == 0 {
		return series
	}
	var lanes []int
	for i, l := range f.Lanes() {
		if l.IsStream {
			lanes = append(lanes, i)
		}
	}
	if len(lanes) == 0 {
		return series
	}
	for r := range f.Visible(vp, lanes...) {
		c0 := column(r.Start, vp.Window, n)
		c1 := column(r.End, vp.Window, n)
		for c := c0; c <= c1; c++ {
			series[c]++
		}
	}
	return series
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}
