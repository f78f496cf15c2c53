package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/query"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

func TestColumn(t *testing.T) {
	w := trace.Window{Start: 0, End: 100}
	assert.Equal(t, 0, column(0, w, 11))
	assert.Equal(t, 5, column(50, w, 11))
	assert.Equal(t, 10, column(100, w, 11))
	assert.Equal(t, 0, column(-5, w, 11))
	assert.Equal(t, 10, column(200, w, 11))
	assert.Equal(t, 0, column(50, trace.Window{}, 11))
	assert.Equal(t, 0, column(50, w, 1))
}

func TestPaint(t *testing.T) {
	w := trace.Window{Start: 0, End: 100}

	line := blankLine(20)
	paint(line, query.Row{Label: "gemm", FullName: "void gemm<float>()", Start: 0, End: 100, Kind: hierarchy.KindKernel}, w, false)
	assert.Equal(t, "█gemm"+strings.Repeat("█", 15), string(line))

	line = blankLine(20)
	paint(line, query.Row{Label: "x", Start: 0, End: 10, Kind: hierarchy.KindKernel, Orphan: true}, w, false)
	assert.Equal(t, "▒▒"+strings.Repeat(" ", 18), string(line))

	line = blankLine(10)
	paint(line, query.Row{Label: "step", Start: 0, End: 100, Kind: hierarchy.KindAnnotation}, w, false)
	assert.Equal(t, "─step─────", string(line))

	line = blankLine(10)
	paint(line, query.Row{Label: "g", FullName: "void gemm<float>()", Start: 0, End: 100, Kind: hierarchy.KindKernel}, w, true)
	assert.Equal(t, strings.Repeat("█", 10), string(line), "label wider than the bar is not drawn")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc…", truncate("abcdef", 4))
	assert.Equal(t, "ab", truncate("ab", 4))
	assert.Equal(t, "…", truncate("abcdef", 1))
	assert.Equal(t, "", truncate("abcdef", 0))
}

func TestAxisLine(t *testing.T) {
	vp := viewport.New(trace.Window{Start: 0, End: 2_000_000_000}, 1)
	vp.Density = viewport.TicksSparse

	assert.Equal(t, "0.000s"+strings.Repeat(" ", 8)+"1.000s"+strings.Repeat(" ", 4)+"2.000s", axisLine(&vp, 30, false))

	rel := axisLine(&vp, 30, true)
	assert.True(t, strings.HasPrefix(rel, "+0 "), rel)
	assert.Contains(t, rel, "+1.0s")
	assert.True(t, strings.HasSuffix(rel, "+2.0s"), rel)
}

func TestAxisLineDropsOverlappingLabels(t *testing.T) {
	vp := viewport.New(trace.Window{Start: 0, End: 2_000_000_000}, 1)
	vp.Density = viewport.TicksDensest
	line := axisLine(&vp, 20, false)
	assert.Equal(t, 20, len([]rune(line)))
	assert.True(t, strings.HasPrefix(line, "0.000s "), line)
}

func TestCursorLine(t *testing.T) {
	vp := viewport.New(trace.Window{Start: 0, End: 2_000_000_000}, 1)
	assert.Equal(t, strings.Repeat(" ", 14)+"▼", cursorLine(&vp, 30))
	assert.Equal(t, "", cursorLine(&vp, 0))
}

func loadFixture(t *testing.T) *query.Facade {
	t.Helper()
	res, err := query.NewLoader(fixtureStore()).Load(context.Background(), query.Request{
		Device: 0,
		Window: trace.Window{Start: us(1000), End: us(1400)},
	})
	require.NoError(t, err)
	return res.Facade
}

func TestBusySeries(t *testing.T) {
	f := loadFixture(t)
	vp := viewport.New(f.Extent(), f.NumLanes())
	assert.Equal(t, []float64{3, 1, 1, 1, 1}, busySeries(f, &vp, 5))
	assert.Empty(t, busySeries(f, &vp, 0))

	vp.MinDuration = us(50)
	assert.Equal(t, []float64{1, 1, 0, 1, 1}, busySeries(f, &vp, 5))
}

func TestLaneLines(t *testing.T) {
	f := loadFixture(t)
	vp := viewport.New(f.Extent(), f.NumLanes())

	lines := laneLines(f, &vp, query.AnnotationLane, 40, maxAnnotationRows, false)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "─A"), lines[0])

	lines = laneLines(f, &vp, 1, 80, maxAnnotationRows, false)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "█flash_fwd")

	lines = laneLines(f, &vp, 2, 40, maxAnnotationRows, false)
	require.Len(t, lines, 1)
	assert.Equal(t, cursorCell, []rune(lines[0])[19])
	assert.Equal(t, orphanCell, []rune(lines[0])[39])

	assert.Nil(t, laneLines(f, &vp, 7, 40, maxAnnotationRows, false))
}
