// Package hierarchy correlates launch calls with kernel executions and nests
// them under the annotation ranges of the primary CPU thread.
package hierarchy

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

// NodeID indexes a node in a Tree. Parents always have smaller ids than their children.
type NodeID int32

const (
	NoNode NodeID = -1
	RootID NodeID = 0
)

type NodeKind uint8

const (
	KindRoot NodeKind = iota
	KindAnnotation
	KindKernel
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindAnnotation:
		return "annotation"
	case KindKernel:
		return "kernel"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Node is one entry of the tree arena.
//
// Start and End cover the node and all of its descendants. For annotations
// CPU is the recorded range and GPU is the hull of the kernels launched inside
// it. For kernels CPU is the launch call and GPU the execution itself.
type Node struct {
	Label    string
	Kind     NodeKind
	Start    trace.Timestamp
	End      trace.Timestamp
	CPU      trace.Window
	GPU      trace.Window
	HasGPU   bool
	Parent   NodeID
	Children []NodeID
	Depth    int

	// kernel fields
	Orphan      bool
	Correlation trace.CorrelationKey
	Device      trace.DeviceID
	Stream      trace.StreamID
	FullName    string
	Thread      trace.ThreadID
}

func (n *Node) Duration() trace.Timestamp { return n.End - n.Start }

func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

type WarningKind uint8

const (
	MalformedNesting WarningKind = iota
	DuplicateCorrelation
)

func (k WarningKind) String() string {
	switch k {
	case MalformedNesting:
		return "malformed nesting"
	case DuplicateCorrelation:
		return "duplicate correlation key"
	default:
		return fmt.Sprintf("WarningKind(%d)", uint8(k))
	}
}

// Warning records a recoverable inconsistency found while building.
type Warning struct {
	Kind    WarningKind
	Label   string
	At      trace.Timestamp
	Message string
}

// Stats counts what happened to the input records.
type Stats struct {
	Annotations     int
	Kernels         int
	Orphans         int
	Duplicates      int
	CrossThread     int
	DroppedLaunches int
	Malformed       int
}

// Tree is the immutable result of Build.
type Tree struct {
	nodes    []Node
	byKey    map[trace.CorrelationKey]NodeID
	window   trace.Window
	primary  trace.ThreadID
	device   trace.DeviceID
	stats    Stats
	warnings []Warning
}

// Empty returns a tree holding only a root over window.
func Empty(window trace.Window) *Tree {
	return &Tree{
		nodes:  []Node{{Label: rootLabel, Kind: KindRoot, Start: window.Start, End: window.End, CPU: window, Parent: NoNode}},
		byKey:  map[trace.CorrelationKey]NodeID{},
		window: window,
	}
}

func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the node with the given id. Its Children slice is
// shared with the tree and must not be modified.
func (t *Tree) Node(id NodeID) Node { return t.nodes[id] }

func (t *Tree) Root() Node { return t.nodes[RootID] }

func (t *Tree) Window() trace.Window { return t.window }

func (t *Tree) Primary() trace.ThreadID { return t.primary }

func (t *Tree) Device() trace.DeviceID { return t.device }

func (t *Tree) Stats() Stats { return t.stats }

func (t *Tree) Warnings() []Warning { return slices.Clone(t.warnings) }

// Lookup finds the kernel node consumed for key. Orphans are not indexed.
func (t *Tree) Lookup(key trace.CorrelationKey) (NodeID, bool) {
	id, ok := t.byKey[key]
	return id, ok
}

// KernelPath returns the labels of the annotations enclosing the kernel with
// the given key, widest first. Kernels attached directly under the root have
// an empty path. Orphans and unknown keys report false.
func (t *Tree) KernelPath(key trace.CorrelationKey) ([]string, bool) {
	id, ok := t.byKey[key]
	if !ok || t.nodes[id].Orphan {
		return nil, false
	}
	return t.Path(id), true
}

// Path returns the annotation labels above id, widest first.
func (t *Tree) Path(id NodeID) []string {
	path := []string{}
	for p := t.nodes[id].Parent; p > RootID; p = t.nodes[p].Parent {
		path = append(path, t.nodes[p].Label)
	}
	slices.Reverse(path)
	return path
}

// PathString joins Path with " > ".
func (t *Tree) PathString(id NodeID) string {
	return strings.Join(t.Path(id), " > ")
}

// All yields every node in depth-first preorder, starting at the root.
func (t *Tree) All() iter.Seq2[NodeID, *Node] {
	return func(yield func(NodeID, *Node) bool) {
		stack := []NodeID{RootID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n := &t.nodes[id]
			if !yield(id, n) {
				return
			}
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
	}
}

// Kernels yields every kernel node in id order.
func (t *Tree) Kernels() iter.Seq2[NodeID, *Node] {
	return func(yield func(NodeID, *Node) bool) {
		for i := range t.nodes {
			if t.nodes[i].Kind != KindKernel {
				continue
			}
			if !yield(NodeID(i), &t.nodes[i]) {
				return
			}
		}
	}
}

// Status summarizes recoverable problems for display, or returns "".
func (t *Tree) Status() string {
	var parts []string
	if t.stats.Orphans > 0 {
		parts = append(parts, fmt.Sprintf("%d orphan kernels", t.stats.Orphans))
	}
	if t.stats.Malformed > 0 {
		parts = append(parts, "malformed nesting detected")
	}
	return strings.Join(parts, ", ")
}
