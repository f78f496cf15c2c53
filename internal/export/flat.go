package export

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"io"
	"slices"
	"strconv"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
)

// KernelRow is one kernel with its annotation path, for spreadsheets and scripts.
type KernelRow struct {
	Name       string  `json:"name"`
	StartNs    int64   `json:"start_ns"`
	EndNs      int64   `json:"end_ns"`
	DurationMs float64 `json:"duration_ms"`
	DurationUs float64 `json:"duration_us"`
	Stream     uint32  `json:"stream"`
	Device     uint32  `json:"device"`
	Path       string  `json:"nvtx_path"`
	Orphan     bool    `json:"orphan"`
}

var csvHeader = []string{"name", "start_ns", "end_ns", "duration_ms", "duration_us", "stream", "device", "nvtx_path", "orphan"}

// KernelRows lists every kernel of the tree in start order.
func KernelRows(t *hierarchy.Tree) []KernelRow {
	var rows []KernelRow
	for id, n := range t.Kernels() {
		d := n.Duration()
		rows = append(rows, KernelRow{
			Name:       n.Label,
			StartNs:    int64(n.Start),
			EndNs:      int64(n.End),
			DurationMs: round(float64(d)/1e6, 3),
			DurationUs: round(float64(d)/1e3, 1),
			Stream:     uint32(n.Stream),
			Device:     uint32(n.Device),
			Path:       t.PathString(id),
			Orphan:     n.Orphan,
		})
	}
	slices.SortStableFunc(rows, func(a, b KernelRow) int { return cmp.Compare(a.StartNs, b.StartNs) })
	return rows
}

func WriteCSV(w io.Writer, rows []KernelRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Name,
			strconv.FormatInt(r.StartNs, 10),
			strconv.FormatInt(r.EndNs, 10),
			strconv.FormatFloat(r.DurationMs, 'f', -1, 64),
			strconv.FormatFloat(r.DurationUs, 'f', -1, 64),
			strconv.FormatUint(uint64(r.Stream), 10),
			strconv.FormatUint(uint64(r.Device), 10),
			r.Path,
			strconv.FormatBool(r.Orphan),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteFlatJSON(w io.Writer, rows []KernelRow) error {
	if rows == nil {
		rows = []KernelRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
