package hierarchy

import (
	"cmp"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const rootLabel = "root"

type options struct {
	logger     *zap.Logger
	device     trace.DeviceID
	hasDevice  bool
	pruneEmpty bool
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDevice ignores kernels that did not run on d.
func WithDevice(d trace.DeviceID) Option {
	return func(o *options) { o.device, o.hasDevice = d, true }
}

// WithPruneEmpty drops annotation ranges that launched no kernel.
func WithPruneEmpty() Option {
	return func(o *options) { o.pruneEmpty = true }
}

type pair struct {
	launch int
	kernel int
}

type builder struct {
	opts    options
	ev      *trace.Events
	primary trace.ThreadID
	t       *Tree

	pairs       []pair
	crossThread []pair
	orphans     []int
	malformed   bool
}

// Build nests the primary thread's annotation ranges and attaches every
// kernel to the innermost range whose CPU span contains its launch call.
// Kernels without a launch become orphan leaves of the root; kernels
// launched from other threads are attached to the root directly.
// Start/end ranges are left out of the nesting since they may cross threads.
func Build(ev *trace.Events, primary trace.ThreadID, window trace.Window, opts ...Option) *Tree {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if ev == nil {
		ev = &trace.Events{}
	}
	b := &builder{opts: o, ev: ev, primary: primary, t: Empty(window)}
	b.t.primary = primary
	b.t.device = o.device

	b.correlate()
	b.nest()
	b.attach()
	b.finish()
	return b.t
}

const (
	kernelSkipped = iota
	kernelUnique
	kernelDuplicate
)

func (b *builder) correlate() {
	kernels := b.ev.Kernels
	state := make([]uint8, len(kernels))
	byKey := make(map[trace.CorrelationKey]int, len(kernels))
	for i := range kernels {
		k := &kernels[i]
		if b.opts.hasDevice && (!k.HasDevice || k.Device != b.opts.device) {
			continue
		}
		if first, ok := byKey[k.Correlation]; ok {
			state[i] = kernelDuplicate
			b.t.stats.Duplicates++
			b.warn(Warning{
				Kind:    DuplicateCorrelation,
				Label:   k.Label,
				At:      k.Start,
				Message: "kernel shares its correlation key with an earlier kernel",
			}, zap.Uint64("key", uint64(k.Correlation)), zap.String("earliest", kernels[first].Label))
			continue
		}
		state[i] = kernelUnique
		byKey[k.Correlation] = i
	}

	matched := make([]bool, len(kernels))
	for li := range b.ev.Launches {
		l := &b.ev.Launches[li]
		ki, ok := byKey[l.Correlation]
		if !ok {
			b.t.stats.DroppedLaunches++
			continue
		}
		if matched[ki] {
			continue
		}
		matched[ki] = true
		if l.Thread == b.primary {
			b.pairs = append(b.pairs, pair{launch: li, kernel: ki})
		} else {
			b.crossThread = append(b.crossThread, pair{launch: li, kernel: ki})
		}
	}

	for i, s := range state {
		if s == kernelDuplicate || (s == kernelUnique && !matched[i]) {
			b.orphans = append(b.orphans, i)
		}
	}
}

func (b *builder) nest() {
	var idx []int
	for i := range b.ev.Annotations {
		a := &b.ev.Annotations[i]
		if a.Thread == b.primary && a.Kind != trace.StartEnd {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(i, j int) int {
		ai, aj := &b.ev.Annotations[i], &b.ev.Annotations[j]
		if c := cmp.Compare(ai.Start, aj.Start); c != 0 {
			return c
		}
		return cmp.Compare(aj.End, ai.End)
	})

	nodes := &b.t.nodes
	stack := make([]NodeID, 0, 32)
	for _, i := range idx {
		a := &b.ev.Annotations[i]
		for len(stack) > 0 && (*nodes)[stack[len(stack)-1]].CPU.End <= a.Start {
			stack = stack[:len(stack)-1]
		}
		for len(stack) > 0 && a.End > (*nodes)[stack[len(stack)-1]].CPU.End {
			top := (*nodes)[stack[len(stack)-1]]
			b.malformed = true
			b.t.stats.Malformed++
			b.warn(Warning{
				Kind:    MalformedNesting,
				Label:   a.Label,
				At:      a.Start,
				Message: "range outlives the enclosing range " + top.Label,
			}, zap.String("open", top.Label), zap.Int64("open_end", int64(top.CPU.End)), zap.Int64("end", int64(a.End)))
			stack = stack[:len(stack)-1]
		}
		parent := RootID
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
		id := b.add(Node{
			Label:  a.Label,
			Kind:   KindAnnotation,
			Start:  a.Start,
			End:    a.End,
			CPU:    a.Window(),
			Parent: parent,
			Thread: a.Thread,
		})
		stack = append(stack, id)
	}
}

// innermost descends from the root to the deepest annotation whose CPU span
// contains iv. Siblings are sorted by CPU start, so each level is a binary
// search; a malformed tree may have overlapping siblings and is scanned backwards.
func (b *builder) innermost(iv trace.Interval) NodeID {
	nodes := b.t.nodes
	cur := RootID
	for {
		children := nodes[cur].Children
		i := sort.Search(len(children), func(i int) bool {
			return nodes[children[i]].CPU.Start > iv.Start
		}) - 1
		next := NoNode
		for j := i; j >= 0; j-- {
			c := &nodes[children[j]]
			if c.CPU.Start <= iv.Start && iv.End <= c.CPU.End {
				next = children[j]
				break
			}
			if !b.malformed && c.CPU.End < iv.Start {
				break
			}
		}
		if next == NoNode {
			return cur
		}
		cur = next
	}
}

func (b *builder) attach() {
	parents := make([]NodeID, len(b.pairs))
	for i, p := range b.pairs {
		parents[i] = b.innermost(b.ev.Launches[p.launch].Interval)
	}
	for i, p := range b.pairs {
		b.addKernel(p.kernel, p.launch, parents[i])
	}
	for _, p := range b.crossThread {
		b.addKernel(p.kernel, p.launch, RootID)
		b.t.stats.CrossThread++
	}
	for _, k := range b.orphans {
		b.addKernel(k, -1, RootID)
	}
}

func (b *builder) addKernel(ki, li int, parent NodeID) {
	k := &b.ev.Kernels[ki]
	n := Node{
		Label:       k.Label,
		Kind:        KindKernel,
		Start:       k.Start,
		End:         k.End,
		GPU:         k.Window(),
		HasGPU:      true,
		Parent:      parent,
		Orphan:      li < 0,
		Correlation: k.Correlation,
		Device:      k.Device,
		Stream:      k.Stream,
		FullName:    k.FullName,
	}
	if li >= 0 {
		l := &b.ev.Launches[li]
		n.CPU = l.Window()
		n.Thread = l.Thread
	}
	id := b.add(n)
	if n.Orphan {
		b.t.stats.Orphans++
		return
	}
	b.t.byKey[k.Correlation] = id
}

func (b *builder) add(n Node) NodeID {
	id := NodeID(len(b.t.nodes))
	b.t.nodes = append(b.t.nodes, n)
	p := &b.t.nodes[n.Parent]
	p.Children = append(p.Children, id)
	return id
}

func (b *builder) finish() {
	nodes := b.t.nodes
	// Parents, the root included, grow to the hull of their children.
	for i := len(nodes) - 1; i > 0; i-- {
		n := &nodes[i]
		p := &nodes[n.Parent]
		p.Start = min(p.Start, n.Start)
		p.End = max(p.End, n.End)
		if !n.HasGPU {
			continue
		}
		if p.HasGPU {
			p.GPU = p.GPU.Union(n.GPU)
		} else {
			p.GPU, p.HasGPU = n.GPU, true
		}
	}

	if b.opts.pruneEmpty {
		b.prune()
		nodes = b.t.nodes
	}

	for i := range nodes {
		n := &nodes[i]
		slices.SortStableFunc(n.Children, func(x, y NodeID) int {
			return cmp.Compare(nodes[x].Start, nodes[y].Start)
		})
		if i > 0 {
			n.Depth = nodes[n.Parent].Depth + 1
		}
		switch n.Kind {
		case KindAnnotation:
			b.t.stats.Annotations++
		case KindKernel:
			b.t.stats.Kernels++
		}
	}
}

// prune compacts the arena, keeping the root, every kernel and the
// annotations with at least one kernel below them.
func (b *builder) prune() {
	old := b.t.nodes
	remap := make([]NodeID, len(old))
	out := make([]Node, 0, len(old))
	for i := range old {
		if old[i].Kind == KindAnnotation && !old[i].HasGPU {
			remap[i] = NoNode
			continue
		}
		remap[i] = NodeID(len(out))
		out = append(out, old[i])
	}
	for i := range out {
		n := &out[i]
		if n.Parent != NoNode {
			n.Parent = remap[n.Parent]
		}
		children := make([]NodeID, 0, len(n.Children))
		for _, c := range n.Children {
			if remap[c] != NoNode {
				children = append(children, remap[c])
			}
		}
		n.Children = children
	}
	for key, id := range b.t.byKey {
		b.t.byKey[key] = remap[id]
	}
	b.t.nodes = out
}

func (b *builder) warn(w Warning, fields ...zap.Field) {
	b.t.warnings = append(b.t.warnings, w)
	fields = append([]zap.Field{zap.String("label", w.Label), zap.Int64("at", int64(w.At))}, fields...)
	b.opts.logger.Warn(w.Kind.String(), fields...)
}
