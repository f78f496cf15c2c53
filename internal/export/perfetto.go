package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

// Annotation depth tracks use thread ids from annotationTrack up; kernel
// tracks use the stream id and sort after them.
const (
	annotationTrack = 10
	streamSortBase  = 50
)

// TraceEvent is one Chrome trace event. Times are in microseconds.
type TraceEvent struct {
	Name  string         `json:"name"`
	Cat   string         `json:"cat,omitempty"`
	Ph    string         `json:"ph"`
	Ts    float64        `json:"ts"`
	Dur   float64        `json:"dur,omitempty"`
	Pid   uint32         `json:"pid"`
	Tid   uint32         `json:"tid"`
	CName string         `json:"cname,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
}

// TraceFile is the document Perfetto and chrome://tracing load.
type TraceFile struct {
	TraceEvents     []TraceEvent `json:"traceEvents"`
	DisplayTimeUnit string       `json:"displayTimeUnit"`
}

// Perfetto converts the tree to trace events relative to the first kernel.
// Only annotations with GPU work are emitted, over their GPU projection.
func Perfetto(t *hierarchy.Tree) TraceFile {
	out := TraceFile{TraceEvents: []TraceEvent{}, DisplayTimeUnit: "ms"}
	origin, ok := firstKernel(t)
	if !ok {
		return out
	}
	pid := uint32(t.Device())
	us := func(ts trace.Timestamp) float64 { return float64(ts) / 1e3 }

	streams := map[trace.StreamID]bool{}
	maxDepth := -1
	for _, n := range t.All() {
		switch n.Kind {
		case hierarchy.KindKernel:
			out.TraceEvents = append(out.TraceEvents, TraceEvent{
				Name: n.Label, Cat: "gpu_kernel", Ph: "X",
				Ts: us(n.Start - origin), Dur: us(n.Duration()),
				Pid: pid, Tid: uint32(n.Stream), CName: "thread_state_runnable",
			})
			streams[n.Stream] = true
		case hierarchy.KindAnnotation:
			if !n.HasGPU {
				continue
			}
			depth := n.Depth - 1
			out.TraceEvents = append(out.TraceEvents, TraceEvent{
				Name: n.Label, Cat: "nvtx_projected", Ph: "X",
				Ts: us(n.GPU.Start - origin), Dur: us(n.GPU.Width()),
				Pid: pid, Tid: uint32(annotationTrack + depth), CName: "good",
			})
			maxDepth = max(maxDepth, depth)
		}
	}

	meta := func(name string, tid uint32, args map[string]any) {
		out.TraceEvents = append(out.TraceEvents, TraceEvent{Name: name, Ph: "M", Pid: pid, Tid: tid, Args: args})
	}
	meta("process_name", 0, map[string]any{"name": fmt.Sprintf("GPU %d", pid)})
	for d := 0; d <= maxDepth; d++ {
		tid := uint32(annotationTrack + d)
		meta("thread_name", tid, map[string]any{"name": fmt.Sprintf("NVTX Lvl %d", d)})
		meta("thread_sort_index", tid, map[string]any{"sort_index": tid})
	}
	ids := make([]trace.StreamID, 0, len(streams))
	for s := range streams {
		ids = append(ids, s)
	}
	slices.Sort(ids)
	for _, s := range ids {
		meta("thread_name", uint32(s), map[string]any{"name": fmt.Sprintf("Stream %d", s)})
		meta("thread_sort_index", uint32(s), map[string]any{"sort_index": streamSortBase + uint32(s)})
	}
	return out
}

func firstKernel(t *hierarchy.Tree) (trace.Timestamp, bool) {
	first, ok := trace.MaxTimestamp, false
	for _, n := range t.Kernels() {
		first, ok = min(first, n.Start), true
	}
	return first, ok
}

func WritePerfetto(w io.Writer, t *hierarchy.Tree) error {
	return json.NewEncoder(w).Encode(Perfetto(t))
}
