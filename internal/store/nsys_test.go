package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const schema = `
CREATE TABLE StringIds (id INTEGER PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE CUPTI_ACTIVITY_KIND_KERNEL (
	start INTEGER NOT NULL, [end] INTEGER NOT NULL,
	deviceId INTEGER NOT NULL, streamId INTEGER NOT NULL,
	correlationId INTEGER, shortName INTEGER, demangledName INTEGER);
CREATE TABLE CUPTI_ACTIVITY_KIND_RUNTIME (
	start INTEGER NOT NULL, [end] INTEGER NOT NULL,
	globalTid INTEGER, correlationId INTEGER, nameId INTEGER);
CREATE TABLE NVTX_EVENTS (
	start INTEGER NOT NULL, [end] INTEGER,
	text TEXT, textId INTEGER, globalTid INTEGER,
	eventType INTEGER NOT NULL, domainId INTEGER);
CREATE TABLE TARGET_INFO_GPU (
	id INTEGER, name TEXT, busLocation TEXT, smCount INTEGER, totalMemory INTEGER);
CREATE TABLE TARGET_INFO_CUDA_DEVICE (gpuId INTEGER, cudaId INTEGER);

INSERT INTO StringIds VALUES
	(1, 'cudaLaunchKernel'),
	(2, 'gemm'), (3, 'void gemm<float>()'),
	(4, 'softmax'),
	(5, 'forward');

INSERT INTO NVTX_EVENTS VALUES
	(0,    1000, NULL, 5,    7, 59, 0),
	(100,  400,  'attn', NULL, 7, 59, 0),
	(500,  NULL, 'marker', NULL, 7, 34, 0),
	(600,  700,  NULL, NULL, 7, 59, 0),
	(0,    900,  'async', NULL, 7, 60, 0),
	(0,    900,  'other-thread', NULL, 8, 59, 0),
	(0,    900,  'ignored', NULL, 7, 75, 0);

INSERT INTO CUPTI_ACTIVITY_KIND_RUNTIME VALUES
	(150, 160, 7, 1, 1),
	(450, 460, 7, 2, NULL),
	(800, 810, 8, 3, 1);

INSERT INTO CUPTI_ACTIVITY_KIND_KERNEL VALUES
	(2000, 2100, 0, 7, 1, 2, 3),
	(2200, 2300, 0, 9, 2, 4, NULL),
	(2400, 2500, 1, 3, 3, 2, 3);

INSERT INTO TARGET_INFO_GPU VALUES (10, 'NVIDIA H100', '0000:1b:00.0', 132, 85899345920);
INSERT INTO TARGET_INFO_CUDA_DEVICE VALUES (10, 0);
`

func writeDB(t *testing.T, stmts string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(stmts)
	require.NoError(t, err)
	return path
}

func openFixture(t *testing.T) *Nsys {
	t.Helper()
	s, err := Open(context.Background(), writeDB(t, schema), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

var all = trace.Query{Window: trace.Window{Start: 0, End: 10_000}}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"), nil)
	require.Error(t, err)
}

func TestOpenMissingTables(t *testing.T) {
	path := writeDB(t, "CREATE TABLE StringIds (id INTEGER, value TEXT);")
	_, err := Open(context.Background(), path, nil)
	require.ErrorIs(t, err, ErrMissingTable)
}

func TestMeta(t *testing.T) {
	s := openFixture(t)
	m, err := s.Meta(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, m.Kernels)
	assert.Equal(t, 3, m.Launches)
	assert.Equal(t, 7, m.Annotations)
	assert.Equal(t, trace.Window{Start: 2000, End: 2500}, m.Extent)

	require.Len(t, m.Devices, 2)
	d0, ok := m.Device(0)
	require.True(t, ok)
	assert.Equal(t, []trace.StreamID{7, 9}, d0.Streams)
	assert.Equal(t, 2, d0.Kernels)
	assert.Equal(t, "NVIDIA H100", d0.Name)
	assert.Equal(t, "0000:1b:00.0", d0.PCIBus)
	assert.Equal(t, 132, d0.SMs)
	assert.Equal(t, uint64(85899345920), d0.Memory)

	d1, ok := m.Device(1)
	require.True(t, ok)
	assert.Empty(t, d1.Name)
	assert.Equal(t, []trace.StreamID{3}, d1.Streams)
}

func TestQueryKernelExecs(t *testing.T) {
	s := openFixture(t)
	ctx := context.Background()

	ks, err := s.QueryKernelExecs(ctx, all.WithDevice(0))
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, trace.Interned(2), ks[0].ShortName)
	assert.Equal(t, trace.Interned(3), ks[0].FullName)
	assert.Equal(t, trace.Ref{}, ks[1].FullName)
	assert.Equal(t, trace.StreamID(9), ks[1].Stream)

	ks, err = s.QueryKernelExecs(ctx, trace.Query{Window: trace.Window{Start: 2100, End: 2200}})
	require.NoError(t, err)
	assert.Len(t, ks, 2, "closed window intersects both boundary kernels")
}

func TestQueryLaunchCalls(t *testing.T) {
	s := openFixture(t)
	ls, err := s.QueryLaunchCalls(context.Background(), all.WithThread(7))
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.Equal(t, trace.CorrelationKey(1), ls[0].Correlation)
	assert.Equal(t, trace.Interned(1), ls[0].API)
	assert.False(t, ls[1].API.Interned)
}

func TestQueryAnnotations(t *testing.T) {
	s := openFixture(t)
	as, err := s.QueryAnnotations(context.Background(), all.WithThread(7))
	require.NoError(t, err)

	// the row with neither text nor textId and the unknown event type are skipped
	require.Len(t, as, 4)
	byText := map[string]trace.RawAnnotation{}
	for _, a := range as {
		key := a.Text.Text
		if a.Text.Interned {
			key = "#interned"
		}
		byText[key] = a
	}
	assert.Equal(t, trace.Interned(5), byText["#interned"].Text)
	assert.True(t, byText["marker"].Instant)
	assert.Equal(t, trace.Mark, byText["marker"].Kind)
	assert.Equal(t, trace.StartEnd, byText["async"].Kind)
	assert.Equal(t, trace.PushPop, byText["attn"].Kind)
}

func TestResolve(t *testing.T) {
	s := openFixture(t)
	v, err := s.Resolve(3)
	require.NoError(t, err)
	assert.Equal(t, "void gemm<float>()", v)

	_, err = s.Resolve(404)
	require.ErrorIs(t, err, trace.ErrUnresolvedReference)
}

func TestNormalizeFromStore(t *testing.T) {
	s := openFixture(t)
	ctx := context.Background()

	var raw trace.RawEvents
	var err error
	raw.Kernels, err = s.QueryKernelExecs(ctx, all.WithDevice(0))
	require.NoError(t, err)
	raw.Launches, err = s.QueryLaunchCalls(ctx, all)
	require.NoError(t, err)
	raw.Annotations, err = s.QueryAnnotations(ctx, all.WithThread(7))
	require.NoError(t, err)

	ev, err := trace.Normalize(raw, s, trace.Clocks{})
	require.NoError(t, err)
	require.Len(t, ev.Kernels, 2)
	assert.Equal(t, "gemm", ev.Kernels[0].Label)
	assert.Equal(t, "void gemm<float>()", ev.Kernels[0].FullName)
	assert.Equal(t, "softmax", ev.Kernels[1].FullName)
	labels := make([]string, 0, len(ev.Annotations))
	for _, a := range ev.Annotations {
		labels = append(labels, a.Label)
	}
	assert.ElementsMatch(t, []string{"forward", "async", "attn", "marker"}, labels)
}
