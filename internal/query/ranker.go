package query

import (
	"cmp"
	"iter"
	"math"
	"slices"
	"sort"

	"github.com/keilerkonzept/topk"
	"github.com/keilerkonzept/topk/heap"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

// Ranker orders the output of a top-k heap or sketch.
type Ranker struct {
	k int
}

func NewRanker(k int) *Ranker {
	if k < 1 {
		k = 1
	}
	return &Ranker{k: k}
}

// Rank takes the current top items from sortedFn, keeps the first k items,
// lets updateCountsFn replace the approximate counts in place and sorts
// by count, breaking ties by item.
func (r *Ranker) Rank(sortedFn func() []heap.Item, updateCountsFn func(items []heap.Item)) []heap.Item {
	items := sortedFn()
	if len(items) > r.k {
		items = items[:r.k]
	}
	items = cloneItems(items)
	if updateCountsFn != nil {
		updateCountsFn(items)
	}
	sort.SliceStable(items, func(i, j int) bool {
		li := items[i]
		lj := items[j]
		if li.Count != lj.Count {
			return li.Count > lj.Count
		}
		return li.Item < lj.Item
	})
	return items
}

func cloneItems(in []heap.Item) []heap.Item {
	out := make([]heap.Item, len(in))
	copy(out, in)
	return out
}

// KernelStat is the accumulated GPU time of one kernel name.
type KernelStat struct {
	Name  string
	Total trace.Timestamp
	Count int
	// Pct is the share of all kernel time in the ranked rows.
	Pct float64
}

// TopKernels ranks the kernel names among rows by accumulated duration.
// Totals are summed per name first, then a k-sized min-heap keeps the
// heaviest names. Equal totals rank by name.
func TopKernels(k int, rows iter.Seq[Row]) []KernelStat {
	if k < 1 {
		return nil
	}
	exact := make(map[string]*KernelStat)
	var total, heaviest trace.Timestamp
	for r := range rows {
		if r.Kind != hierarchy.KindKernel {
			continue
		}
		st, ok := exact[r.Label]
		if !ok {
			st = &KernelStat{Name: r.Label}
			exact[r.Label] = st
		}
		d := r.Duration()
		st.Total += d
		st.Count++
		total += d
		heaviest = max(heaviest, st.Total)
	}
	if len(exact) == 0 {
		return nil
	}

	// heap counts are uint32; totals past ~4.3s are scaled down to fit
	unit := heaviest/math.MaxUint32 + 1
	count := func(name string) uint32 { return uint32(exact[name].Total / unit) }
	top := heap.NewMin(k)
	for name := range exact {
		top.Update(name, topk.Fingerprint(name), count(name))
	}
	items := top.Items
	if top.Full() {
		// The heap keeps the names above its minimum exactly, but an
		// arbitrary subset of the names tied at it. Refill those slots with
		// the lowest tied names.
		floor := top.Min()
		items = slices.DeleteFunc(slices.Clone(items), func(it heap.Item) bool { return it.Count == floor })
		var tied []string
		for name := range exact {
			if count(name) == floor {
				tied = append(tied, name)
			}
		}
		slices.SortFunc(tied, func(a, b string) int { return byTotal(exact[a], exact[b]) })
		for _, name := range tied[:k-len(items)] {
			items = append(items, heap.Item{Fingerprint: topk.Fingerprint(name), Item: name, Count: floor})
		}
	}
	items = NewRanker(k).Rank(func() []heap.Item { return items }, nil)

	out := make([]KernelStat, 0, len(items))
	for _, it := range items {
		s := *exact[it.Item]
		if total > 0 {
			s.Pct = 100 * float64(s.Total) / float64(total)
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b KernelStat) int { return byTotal(&a, &b) })
	return out
}

func byTotal(a, b *KernelStat) int {
	if c := cmp.Compare(b.Total, a.Total); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
