// Package export writes a built hierarchy in formats meant for other tools:
// indented text, markdown, nested and flat JSON, CSV and Chrome trace events.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const (
	annotationIcon = "📦"
	kernelIcon     = "⚡"
)

// span is the time range a node is reported with. Annotations that
// launched work are shown over their GPU projection.
func span(n *hierarchy.Node) trace.Window {
	switch {
	case n.Kind == hierarchy.KindAnnotation && n.HasGPU:
		return n.GPU
	case n.Kind == hierarchy.KindAnnotation:
		return n.CPU
	default:
		return trace.Window{Start: n.Start, End: n.End}
	}
}

func millis(ns trace.Timestamp) float64 { return float64(ns) / 1e6 }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// TextOptions controls Text.
type TextOptions struct {
	Color bool
	// FullNames prints demangled kernel names.
	FullNames bool
}

// Text writes the tree as an indented outline, two spaces per level.
func Text(w io.Writer, t *hierarchy.Tree, opts TextOptions) error {
	annotation := color.New(color.FgCyan, color.Bold)
	kernel := color.New(color.FgYellow)
	faint := color.New(color.Faint)
	orphan := color.New(color.FgRed)
	for _, c := range []*color.Color{annotation, kernel, faint, orphan} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	var sb strings.Builder
	for id, n := range t.All() {
		if id == hierarchy.RootID {
			continue
		}
		sb.WriteString(strings.Repeat("  ", n.Depth-1))
		dur := faint.Sprintf("(%.3fms)", millis(span(n).Width()))
		switch n.Kind {
		case hierarchy.KindAnnotation:
			fmt.Fprintf(&sb, "%s %s  %s\n", annotationIcon, annotation.Sprint(n.Label), dur)
		case hierarchy.KindKernel:
			name := n.Label
			if opts.FullNames && n.FullName != "" {
				name = n.FullName
			}
			c := kernel
			if n.Orphan {
				c = orphan
			}
			fmt.Fprintf(&sb, "%s %s [stream %d]  %s\n", kernelIcon, c.Sprint(name), n.Stream, dur)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Markdown writes annotations as headers and their kernels as a table.
// Header levels start at 2 and stop at 6.
func Markdown(w io.Writer, t *hierarchy.Tree) error {
	var sb strings.Builder
	root := t.Root()
	for _, id := range root.Children {
		markdownNode(&sb, t, id, 0)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func markdownNode(sb *strings.Builder, t *hierarchy.Tree, id hierarchy.NodeID, depth int) {
	n := t.Node(id)
	if n.Kind == hierarchy.KindKernel {
		fmt.Fprintf(sb, "- %s **%s** [stream %d] (%.3fms)\n", kernelIcon, n.Label, n.Stream, millis(n.Duration()))
		return
	}
	level := min(depth+2, 6)
	fmt.Fprintf(sb, "%s %s (%.1fms)\n\n", strings.Repeat("#", level), n.Label, millis(span(&n).Width()))

	var nested []hierarchy.NodeID
	wroteHeader := false
	for _, c := range n.Children {
		k := t.Node(c)
		if k.Kind != hierarchy.KindKernel {
			nested = append(nested, c)
			continue
		}
		if !wroteHeader {
			sb.WriteString("| Kernel | Stream | Duration |\n|--------|--------|----------|\n")
			wroteHeader = true
		}
		fmt.Fprintf(sb, "| %s | %d | %.3fms |\n", k.Label, k.Stream, millis(k.Duration()))
	}
	if wroteHeader {
		sb.WriteString("\n")
	}
	for _, c := range nested {
		markdownNode(sb, t, c, depth+1)
	}
}

// JSONNode is one entry of the nested JSON tree.
type JSONNode struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	DurationMs float64    `json:"duration_ms"`
	Heat       float64    `json:"heat"`
	RelPct     float64    `json:"relative_pct"`
	StartNs    int64      `json:"start_ns"`
	EndNs      int64      `json:"end_ns"`
	Path       string     `json:"path"`
	Stream     *uint32    `json:"stream,omitempty"`
	Demangled  string     `json:"demangled,omitempty"`
	Orphan     bool       `json:"orphan,omitempty"`
	Children   []JSONNode `json:"children,omitempty"`
}

// JSONTree converts the children of the root. Heat is the duration relative
// to the longest sibling; relative_pct the share of the parent's duration.
func JSONTree(t *hierarchy.Tree) []JSONNode {
	return jsonNodes(t, t.Root().Children, 0, "")
}

func jsonNodes(t *hierarchy.Tree, ids []hierarchy.NodeID, parentMs float64, path string) []JSONNode {
	if len(ids) == 0 {
		return nil
	}
	nodes := make([]hierarchy.Node, len(ids))
	durs := make([]float64, len(ids))
	maxDur := 0.0
	for i, id := range ids {
		nodes[i] = t.Node(id)
		durs[i] = millis(span(&nodes[i]).Width())
		maxDur = max(maxDur, durs[i])
	}

	out := make([]JSONNode, 0, len(ids))
	for i := range nodes {
		n := &nodes[i]
		s := span(n)
		p := n.Label
		if path != "" {
			p = path + " > " + n.Label
		}
		j := JSONNode{
			Name:       n.Label,
			Type:       n.Kind.String(),
			DurationMs: round(durs[i], 3),
			RelPct:     100,
			StartNs:    int64(s.Start),
			EndNs:      int64(s.End),
			Path:       p,
		}
		if maxDur > 0 {
			j.Heat = round(durs[i]/maxDur, 3)
		}
		if parentMs > 0 {
			j.RelPct = round(100*durs[i]/parentMs, 1)
		}
		if n.Kind == hierarchy.KindKernel {
			stream := uint32(n.Stream)
			j.Stream = &stream
			if n.FullName != n.Label {
				j.Demangled = n.FullName
			}
			j.Orphan = n.Orphan
		}
		j.Children = jsonNodes(t, n.Children, durs[i], p)
		out = append(out, j)
	}
	return out
}

// WriteJSONTree writes JSONTree indented.
func WriteJSONTree(w io.Writer, t *hierarchy.Tree) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	nodes := JSONTree(t)
	if nodes == nil {
		nodes = []JSONNode{}
	}
	return enc.Encode(nodes)
}
