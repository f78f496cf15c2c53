package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

func rowLabels(seq func(func(Row) bool)) []string {
	var out []string
	for r := range seq {
		out = append(out, r.Label)
	}
	return out
}

func TestLanes(t *testing.T) {
	f := loadFixture(t).Facade
	require.Equal(t, 3, f.NumLanes())
	lanes := f.Lanes()
	assert.False(t, lanes[AnnotationLane].IsStream)
	assert.Equal(t, trace.StreamID(7), lanes[1].Stream)
	assert.Equal(t, trace.StreamID(9), lanes[2].Stream)
	assert.Equal(t, "stream 9", lanes[2].Name)
	assert.Equal(t, 2, lanes[AnnotationLane].MaxDepth)
	assert.Equal(t, trace.Window{Start: us(1000), End: us(1400)}, f.Extent())
}

func TestVisibleSelectedLane(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	vp.Stream = 1

	assert.Equal(t, []string{"gemm", "flash_fwd", "gemm"}, rowLabels(f.Visible(&vp)))

	vp.Window = trace.Window{Start: us(1015), End: us(1030)}
	assert.Equal(t, []string{"flash_fwd"}, rowLabels(f.Visible(&vp)))

	vp.Window = trace.Window{Start: us(1010), End: us(1020)}
	assert.Equal(t, []string{"gemm", "flash_fwd"}, rowLabels(f.Visible(&vp)), "closed intervals")
}

func TestVisibleFilters(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	vp.Stream = 1

	require.NoError(t, vp.Apply(viewport.SetFilter{Pattern: "GEMM"}))
	assert.Equal(t, []string{"gemm", "gemm"}, rowLabels(f.Visible(&vp)))

	require.NoError(t, vp.Apply(viewport.SetFilter{Pattern: "float>"}))
	assert.Len(t, rowLabels(f.Visible(&vp)), 3, "full names are matched too")

	require.NoError(t, vp.Apply(viewport.SetFilter{}, viewport.SetMinDuration{Threshold: us(50)}))
	assert.Equal(t, []string{"flash_fwd"}, rowLabels(f.Visible(&vp)))

	total := 0
	for range f.Tree().Kernels() {
		total++
	}
	assert.Equal(t, 5, total, "filters never touch the tree")
}

func TestVisibleAnnotationLane(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	vp.Window = trace.Window{Start: us(1030), End: us(1040)}

	rows := slices.Collect(f.Visible(&vp))
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Label)
	assert.Equal(t, 1, rows[0].Depth)
	assert.Equal(t, "C", rows[1].Label)
	assert.Equal(t, 2, rows[1].Depth)
	assert.Equal(t, hierarchy.KindAnnotation, rows[1].Kind)
}

func TestVisibleIsRestartable(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())

	seq := f.Visible(&vp, f.AllLanes()...)
	first := rowLabels(seq)
	assert.Len(t, first, 9)
	assert.Equal(t, first, rowLabels(seq))

	require.NoError(t, vp.Apply(viewport.SetFilter{Pattern: "lonely"}))
	assert.Equal(t, []string{"lonely"}, rowLabels(seq), "the sequence reads the current viewport")

	var got []string
	for r := range seq {
		got = append(got, r.Label)
		break
	}
	assert.Len(t, got, 1)
}

func TestVisibleOrphanFlag(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	vp.Stream = 2
	rows := slices.Collect(f.Visible(&vp))
	require.Len(t, rows, 2)
	assert.False(t, rows[0].Orphan)
	assert.True(t, rows[1].Orphan)
	assert.Equal(t, 2, rows[1].Lane)
}

func TestNearest(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())

	r, ok := f.Nearest(&vp, 1, us(1050))
	require.True(t, ok)
	assert.Equal(t, "flash_fwd", r.Label)

	r, ok = f.Nearest(&vp, 1, us(1150))
	require.True(t, ok)
	assert.Equal(t, "gemm", r.Label)
	assert.Equal(t, us(1200), r.Start)

	r, ok = f.Nearest(&vp, AnnotationLane, us(1005))
	require.True(t, ok)
	assert.Equal(t, "B", r.Label, "deepest containing range")

	_, ok = f.Nearest(&vp, 17, 0)
	assert.False(t, ok)
}

func TestSnapUsesLocator(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	require.NoError(t, vp.Apply(viewport.SelectStream{Delta: 1}, viewport.Zoom{Factor: 4}))
	vp.Cursor = us(1000)

	require.NoError(t, vp.Apply(viewport.SnapToEvent{Direction: viewport.Forward, Events: f.Locator(&vp)}))
	assert.Equal(t, us(1020), vp.Cursor)

	require.NoError(t, vp.Apply(viewport.SetFilter{Pattern: "gemm"}))
	require.NoError(t, vp.Apply(viewport.SnapToEvent{Direction: viewport.Forward, Events: f.Locator(&vp)}))
	assert.Equal(t, us(1200), vp.Cursor)

	err := vp.Apply(viewport.SnapToEvent{Direction: viewport.Forward, Events: f.Locator(&vp)})
	assert.ErrorIs(t, err, viewport.ErrNoEvent)

	require.NoError(t, vp.Apply(viewport.SnapToEvent{Direction: viewport.Backward, Events: f.Locator(&vp)}))
	assert.Equal(t, us(1000), vp.Cursor)
}

func TestSnapWalksEveryAnnotation(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())
	require.NoError(t, vp.Apply(viewport.JumpToEdge{Direction: viewport.Forward}))

	walk := func(dir viewport.Direction) []string {
		var out []string
		for vp.Apply(viewport.SnapToEvent{Direction: dir, Events: f.Locator(&vp)}) == nil {
			r, ok := f.At(AnnotationLane, vp.Event)
			require.True(t, ok)
			out = append(out, r.Label)
		}
		return out
	}

	// A and B both start at the first kernel
	assert.Equal(t, []string{"D", "C", "B", "A"}, walk(viewport.Backward))
	assert.Equal(t, us(1000), vp.Cursor)
	assert.Equal(t, []string{"B", "C", "D"}, walk(viewport.Forward))
	assert.Equal(t, []string{"C", "B", "A"}, walk(viewport.Backward))
}

func TestKernelPathThroughFacade(t *testing.T) {
	f := loadFixture(t).Facade
	path, ok := f.KernelPath(3)
	require.True(t, ok)
	assert.Equal(t, []string{"D"}, path)

	path, ok = f.KernelPath(99)
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, "1 orphan kernels", f.Status())
}

func TestTopKernels(t *testing.T) {
	f := loadFixture(t).Facade
	vp := viewport.New(f.Extent(), f.NumLanes())

	top := TopKernels(2, f.Visible(&vp, f.AllLanes()...))
	require.Len(t, top, 2)
	assert.Equal(t, "lonely", top[0].Name)
	assert.Equal(t, us(100), top[0].Total)
	assert.Equal(t, "flash_fwd", top[1].Name)
	assert.InDelta(t, 100*100.0/205.0, top[0].Pct, 0.01)

	all := TopKernels(10, f.Visible(&vp, f.AllLanes()...))
	require.Len(t, all, 4)
	assert.Equal(t, "gemm", all[2].Name)
	assert.Equal(t, 2, all[2].Count)
	assert.Equal(t, us(15), all[2].Total)

	assert.Nil(t, TopKernels(0, f.Visible(&vp)))
}

func kernelRows(totals map[string]trace.Timestamp) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		var at trace.Timestamp
		for name, d := range totals {
			if !yield(Row{Label: name, Start: at, End: at + d, Kind: hierarchy.KindKernel}) {
				return
			}
			at += d
		}
	}
}

func names(stats []KernelStat) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Name
	}
	return out
}

func TestTopKernelsManyNames(t *testing.T) {
	totals := make(map[string]trace.Timestamp)
	for i := range 300 {
		totals[fmt.Sprintf("k%d", i)] = us(int64(i+1) * 10)
	}
	top := TopKernels(5, kernelRows(totals))
	assert.Equal(t, []string{"k299", "k298", "k297", "k296", "k295"}, names(top))
	assert.Equal(t, us(3000), top[0].Total)
}

func TestTopKernelsTies(t *testing.T) {
	totals := map[string]trace.Timestamp{"c": 10, "a": 10, "b": 10, "d": 5, "e": 20}
	assert.Equal(t, []string{"e", "a", "b"}, names(TopKernels(3, kernelRows(totals))))
}

func TestTopKernelsLongTotals(t *testing.T) {
	totals := map[string]trace.Timestamp{
		"y": trace.Timestamp(9 * time.Second),
		"x": trace.Timestamp(10 * time.Second),
		"z": trace.Timestamp(time.Millisecond),
	}
	top := TopKernels(2, kernelRows(totals))
	assert.Equal(t, []string{"x", "y"}, names(top))
	assert.Equal(t, trace.Timestamp(10*time.Second), top[0].Total)
}

func TestSummarize(t *testing.T) {
	f := loadFixture(t).Facade
	s := Summarize(f, trace.DeviceInfo{ID: 0, Name: "H100"}, 3)

	assert.Equal(t, 5, s.Kernels)
	assert.Equal(t, us(400), s.Span)
	assert.Equal(t, us(205), s.Compute)
	assert.Equal(t, us(205), s.Idle)
	assert.InDelta(t, 51.25, s.Utilization, 0.001)
	require.Len(t, s.Streams, 2)
	assert.Equal(t, StreamStat{Stream: 7, Kernels: 3, Total: us(95)}, s.Streams[0])
	assert.Equal(t, StreamStat{Stream: 9, Kernels: 2, Total: us(110)}, s.Streams[1])
	require.Len(t, s.TopKernels, 3)
	assert.Equal(t, "1 orphan kernels", s.Status)
}

func TestSearch(t *testing.T) {
	f := loadFixture(t).Facade

	m := f.Search("D", "gemm")
	require.Len(t, m, 1)
	assert.Equal(t, us(1200), m[0].Kernel.Start)
	assert.Equal(t, []string{"D"}, m[0].Path)

	assert.Len(t, f.Search("", "gemm"), 2)
	assert.Len(t, f.Search("^A$", ""), 2)
	assert.Empty(t, f.Search("B", "flash"))
	assert.Len(t, f.Search("", "lonely"), 1)
}

func TestLoadNoActivity(t *testing.T) {
	res, err := NewLoader(fixtureStore()).Load(context.Background(), Request{Device: 3, Window: fixtureWindow})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Contains(t, res.Status, "no kernel activity")
	assert.Equal(t, 1, res.Tree.Len())
	assert.Equal(t, 1, res.Facade.NumLanes())
}

func TestLoadUnresolvedReference(t *testing.T) {
	store := fixtureStore()
	store.Strings = trace.Strings{}
	_, err := NewLoader(store).Load(context.Background(), Request{Device: 0, Window: fixtureWindow})
	require.Error(t, err)
	assert.True(t, errors.Is(err, trace.ErrUnresolvedReference))
}

func TestLoadPruneEmpty(t *testing.T) {
	store := fixtureStore()
	store.Raw.Annotations = append(store.Raw.Annotations, trace.RawAnnotation{
		Start: 400, End: 500, Thread: primary, Text: trace.Inline("idle"),
	})
	res, err := NewLoader(store, WithPruneEmpty(true)).Load(context.Background(), Request{Device: 0, Window: fixtureWindow})
	require.NoError(t, err)
	for _, n := range res.Tree.All() {
		assert.NotEqual(t, "idle", n.Label)
	}
	assert.Equal(t, 4, res.Tree.Stats().Annotations)
}

func TestLoadIsIdempotent(t *testing.T) {
	first := loadFixture(t)
	second := loadFixture(t)
	require.Equal(t, first.Tree.Len(), second.Tree.Len())
	for id := range first.Tree.Len() {
		a, b := first.Tree.Node(hierarchy.NodeID(id)), second.Tree.Node(hierarchy.NodeID(id))
		assert.Equal(t, a, b)
	}
}

type brokenTables struct {
	*trace.MemStore
}

var (
	errKernelTable  = errors.New("no such table: CUPTI_ACTIVITY_KIND_KERNEL")
	errRuntimeTable = errors.New("no such table: CUPTI_ACTIVITY_KIND_RUNTIME")
)

func (brokenTables) QueryKernelExecs(context.Context, trace.Query) ([]trace.RawKernel, error) {
	return nil, errKernelTable
}

func (brokenTables) QueryLaunchCalls(context.Context, trace.Query) ([]trace.RawLaunch, error) {
	return nil, errRuntimeTable
}

func TestLoadReportsEveryFailedQuery(t *testing.T) {
	_, err := NewLoader(brokenTables{fixtureStore()}).Load(context.Background(), Request{Device: 0, Window: fixtureWindow})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, errKernelTable)
	assert.ErrorIs(t, err, errRuntimeTable)
	assert.Contains(t, err.Error(), "query kernels")
	assert.Contains(t, err.Error(), "query launch calls")
}

func TestLoadAppliesClockOffsets(t *testing.T) {
	clocks := trace.Clocks{Kernels: us(500)}
	res, err := NewLoader(fixtureStore(), WithClocks(clocks)).Load(context.Background(), Request{Device: 0, Window: fixtureWindow})
	require.NoError(t, err)
	require.False(t, res.Empty)

	var starts []trace.Timestamp
	for _, n := range res.Tree.Kernels() {
		starts = append(starts, n.Start)
	}
	slices.Sort(starts)
	assert.Equal(t, []trace.Timestamp{us(1500), us(1520), us(1550), us(1700), us(1800)}, starts)

	path, ok := res.Tree.KernelPath(2)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C"}, path)
}

func TestSessionLastCommandWins(t *testing.T) {
	s := NewSession(NewLoader(fixtureStore()), nil)
	defer s.Close()

	ctx1, gen1 := s.Begin(context.Background())
	ctx2, gen2 := s.Begin(context.Background())
	require.Error(t, ctx1.Err(), "older rebuild is cancelled")

	stale := s.Rebuild(ctx1, gen1, Request{Device: 0, Window: fixtureWindow})
	assert.ErrorIs(t, stale.Err, context.Canceled)
	assert.False(t, s.Accept(stale))

	fresh := s.Rebuild(ctx2, gen2, Request{Device: 0, Window: fixtureWindow})
	require.NoError(t, fresh.Err)
	assert.True(t, s.Accept(fresh))
	assert.Equal(t, gen2, fresh.Generation)
}

func TestSessionConcurrentRebuilds(t *testing.T) {
	s := NewSession(NewLoader(fixtureStore()), nil)
	defer s.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	for range 8 {
		ctx, gen := s.Begin(context.Background())
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.Rebuild(ctx, gen, Request{Device: 0, Window: fixtureWindow})
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if s.Accept(r) {
			accepted++
			require.NoError(t, r.Err)
		}
	}
	assert.Equal(t, 1, accepted)
}
