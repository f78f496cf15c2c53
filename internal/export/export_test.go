package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const ms = trace.Timestamp(1_000_000)

// fixtureTree builds
//
//	step { attn { gemm }, softmax }
//	lonely (orphan)
func fixtureTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	ann := func(label string, start, end trace.Timestamp) trace.AnnotationRange {
		return trace.AnnotationRange{Interval: trace.Interval{Start: start, End: end, Thread: 1, Label: label}, Kind: trace.PushPop}
	}
	launch := func(key trace.CorrelationKey, at trace.Timestamp) trace.LaunchCall {
		return trace.LaunchCall{Interval: trace.Interval{Start: at, End: at + 10, Thread: 1, Label: "cudaLaunchKernel"}, Correlation: key}
	}
	kernel := func(key trace.CorrelationKey, name, full string, stream trace.StreamID, start, end trace.Timestamp) trace.KernelExec {
		return trace.KernelExec{
			Interval:    trace.Interval{Start: start, End: end, HasDevice: true, Label: name},
			Correlation: key, Stream: stream, FullName: full,
		}
	}
	ev := &trace.Events{
		Annotations: []trace.AnnotationRange{ann("step", 0, 1*ms), ann("attn", ms/10, 4*ms/10)},
		Launches:    []trace.LaunchCall{launch(1, 15*ms/100), launch(2, 6*ms/10)},
		Kernels: []trace.KernelExec{
			kernel(1, "gemm", "void gemm<float>()", 7, 2*ms, 3*ms),
			kernel(2, "softmax", "softmax", 9, 3*ms, 5*ms),
			kernel(99, "lonely", "lonely", 7, 6*ms, 7*ms),
		},
	}
	return hierarchy.Build(ev, 1, trace.Window{Start: 0, End: 10 * ms})
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, fixtureTree(t), TextOptions{}))
	want := "" +
		"📦 step  (3.000ms)\n" +
		"  📦 attn  (1.000ms)\n" +
		"    ⚡ gemm [stream 7]  (1.000ms)\n" +
		"  ⚡ softmax [stream 9]  (2.000ms)\n" +
		"⚡ lonely [stream 7]  (1.000ms)\n"
	assert.Equal(t, want, buf.String())
}

func TestTextFullNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, fixtureTree(t), TextOptions{FullNames: true}))
	assert.Contains(t, buf.String(), "⚡ void gemm<float>() [stream 7]")
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, fixtureTree(t)))
	out := buf.String()
	assert.Contains(t, out, "## step (3.0ms)\n\n| Kernel | Stream | Duration |\n|--------|--------|----------|\n| softmax | 9 | 2.000ms |\n")
	assert.Contains(t, out, "### attn (1.0ms)\n\n| Kernel | Stream | Duration |\n|--------|--------|----------|\n| gemm | 7 | 1.000ms |\n")
	assert.Contains(t, out, "- ⚡ **lonely** [stream 7] (1.000ms)\n")
}

func TestMarkdownHeaderLevelCapped(t *testing.T) {
	var anns []trace.AnnotationRange
	for i := range 8 {
		anns = append(anns, trace.AnnotationRange{Interval: trace.Interval{
			Start: trace.Timestamp(i), End: trace.Timestamp(100 - i), Thread: 1, Label: "lvl",
		}})
	}
	tree := hierarchy.Build(&trace.Events{Annotations: anns}, 1, trace.Window{Start: 0, End: 100})
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, tree))
	assert.Contains(t, buf.String(), "###### lvl")
	assert.NotContains(t, buf.String(), "####### ")
}

func TestJSONTree(t *testing.T) {
	nodes := JSONTree(fixtureTree(t))
	require.Len(t, nodes, 2)

	step, lonely := nodes[0], nodes[1]
	assert.Equal(t, "step", step.Name)
	assert.Equal(t, "annotation", step.Type)
	assert.Equal(t, 3.0, step.DurationMs)
	assert.Equal(t, 1.0, step.Heat)
	assert.Equal(t, 100.0, step.RelPct)
	assert.Equal(t, int64(2*ms), step.StartNs)
	assert.Equal(t, int64(5*ms), step.EndNs)
	assert.Nil(t, step.Stream)

	assert.Equal(t, 0.333, lonely.Heat)
	assert.True(t, lonely.Orphan)

	require.Len(t, step.Children, 2)
	attn, softmax := step.Children[0], step.Children[1]
	assert.Equal(t, 33.3, attn.RelPct)
	assert.Equal(t, 66.7, softmax.RelPct)
	assert.Empty(t, softmax.Demangled)

	require.Len(t, attn.Children, 1)
	gemm := attn.Children[0]
	assert.Equal(t, "step > attn > gemm", gemm.Path)
	assert.Equal(t, "void gemm<float>()", gemm.Demangled)
	require.NotNil(t, gemm.Stream)
	assert.Equal(t, uint32(7), *gemm.Stream)
}

func TestWriteJSONTreeEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONTree(&buf, hierarchy.Empty(trace.Window{Start: 0, End: 1})))
	assert.JSONEq(t, "[]", buf.String())
}

func TestKernelRows(t *testing.T) {
	rows := KernelRows(fixtureTree(t))
	require.Len(t, rows, 3)
	assert.Equal(t, KernelRow{
		Name: "gemm", StartNs: int64(2 * ms), EndNs: int64(3 * ms),
		DurationMs: 1, DurationUs: 1000, Stream: 7, Path: "step > attn",
	}, rows[0])
	assert.Equal(t, "step", rows[1].Path)
	assert.Equal(t, "", rows[2].Path)
	assert.True(t, rows[2].Orphan)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, KernelRows(fixtureTree(t))))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, csvHeader, recs[0])
	assert.Equal(t, []string{"gemm", "2000000", "3000000", "1", "1000", "7", "0", "step > attn", "false"}, recs[1])
}

func TestWriteFlatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFlatJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, WriteFlatJSON(&buf, KernelRows(fixtureTree(t))))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "step > attn", got[0]["nvtx_path"])
}

func TestPerfetto(t *testing.T) {
	tf := Perfetto(fixtureTree(t))
	assert.Equal(t, "ms", tf.DisplayTimeUnit)

	var kernels, annotations, meta int
	for _, e := range tf.TraceEvents {
		switch e.Cat {
		case "gpu_kernel":
			kernels++
		case "nvtx_projected":
			annotations++
		case "":
			meta++
		}
	}
	assert.Equal(t, 3, kernels)
	assert.Equal(t, 2, annotations)
	assert.Equal(t, 9, meta)

	first := tf.TraceEvents[0]
	assert.Equal(t, "step", first.Name)
	assert.Equal(t, uint32(annotationTrack), first.Tid)
	assert.Equal(t, 0.0, first.Ts)
	assert.Equal(t, 3000.0, first.Dur)
}

func TestPerfettoEmpty(t *testing.T) {
	tf := Perfetto(hierarchy.Empty(trace.Window{Start: 0, End: 1}))
	assert.Empty(t, tf.TraceEvents)
}
