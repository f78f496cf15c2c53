// Package store reads Nsight Systems SQLite exports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

const (
	tableKernel  = "CUPTI_ACTIVITY_KIND_KERNEL"
	tableRuntime = "CUPTI_ACTIVITY_KIND_RUNTIME"
	tableNVTX    = "NVTX_EVENTS"
	tableStrings = "StringIds"
	tableGPU     = "TARGET_INFO_GPU"
	tableCUDADev = "TARGET_INFO_CUDA_DEVICE"
)

// NVTX event types as recorded in NVTX_EVENTS.eventType.
const (
	nvtxMark     = 34
	nvtxPushPop  = 59
	nvtxStartEnd = 60
)

var ErrMissingTable = errors.New("required table missing")

// Nsys is a read-only trace.Store over an Nsight Systems SQLite export.
type Nsys struct {
	db     *sql.DB
	path   string
	tables map[string]bool
	logger *zap.Logger

	resolveStmt *sql.Stmt
	mu          sync.Mutex
	strings     map[trace.StringID]string
}

var _ trace.Store = (*Nsys)(nil)

// Open opens path read-only and checks that the kernel and runtime tables exist.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Nsys, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	s := &Nsys{
		db:      db,
		path:    path,
		tables:  make(map[string]bool),
		logger:  logger,
		strings: make(map[trace.StringID]string),
	}
	if err := s.init(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

func (s *Nsys) init(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		s.tables[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, t := range []string{tableKernel, tableRuntime} {
		if !s.tables[t] {
			return fmt.Errorf("%w: %s", ErrMissingTable, t)
		}
	}
	if s.tables[tableStrings] {
		s.resolveStmt, err = s.db.PrepareContext(ctx, "SELECT value FROM "+tableStrings+" WHERE id = ?")
		if err != nil {
			return fmt.Errorf("preparing string lookup: %w", err)
		}
	}
	s.logger.Debug("opened trace database", zap.String("path", s.path), zap.Int("tables", len(s.tables)))
	return nil
}

func (s *Nsys) Path() string { return s.path }

func (s *Nsys) Close() error {
	var err error
	if s.resolveStmt != nil {
		err = multierr.Append(err, s.resolveStmt.Close())
	}
	return multierr.Append(err, s.db.Close())
}

// Resolve looks up an interned string. Results are cached.
func (s *Nsys) Resolve(id trace.StringID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.strings[id]; ok {
		return v, nil
	}
	if s.resolveStmt == nil {
		return "", &trace.UnresolvedReferenceError{ID: id, Field: tableStrings}
	}
	var v string
	if err := s.resolveStmt.QueryRow(int64(id)).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", &trace.UnresolvedReferenceError{ID: id, Field: tableStrings}
		}
		return "", fmt.Errorf("resolving string %d: %w", id, err)
	}
	s.strings[id] = v
	return v, nil
}

func (s *Nsys) Meta(ctx context.Context) (trace.Meta, error) {
	var m trace.Meta

	var minStart, maxEnd sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(start), MAX([end]) FROM "+tableKernel).Scan(&m.Kernels, &minStart, &maxEnd)
	if err != nil {
		return m, fmt.Errorf("kernel range: %w", err)
	}
	m.Extent = trace.Window{Start: trace.Timestamp(minStart.Int64), End: trace.Timestamp(maxEnd.Int64)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableRuntime).Scan(&m.Launches); err != nil {
		return m, fmt.Errorf("runtime count: %w", err)
	}
	if s.tables[tableNVTX] {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableNVTX).Scan(&m.Annotations); err != nil {
			return m, fmt.Errorf("nvtx count: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT deviceId, streamId, COUNT(*)
		FROM `+tableKernel+`
		GROUP BY deviceId, streamId
		ORDER BY deviceId, streamId`)
	if err != nil {
		return m, fmt.Errorf("listing streams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dev, stream int64
			n           int
		)
		if err := rows.Scan(&dev, &stream, &n); err != nil {
			return m, err
		}
		if len(m.Devices) == 0 || m.Devices[len(m.Devices)-1].ID != trace.DeviceID(dev) {
			m.Devices = append(m.Devices, trace.DeviceInfo{ID: trace.DeviceID(dev)})
		}
		d := &m.Devices[len(m.Devices)-1]
		d.Streams = append(d.Streams, trace.StreamID(stream))
		d.Kernels += n
	}
	if err := rows.Err(); err != nil {
		return m, err
	}

	if s.tables[tableGPU] && s.tables[tableCUDADev] {
		if err := s.hardware(ctx, &m); err != nil {
			s.logger.Warn("reading GPU hardware info", zap.Error(err))
		}
	}
	return m, nil
}

func (s *Nsys) hardware(ctx context.Context, m *trace.Meta) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.cudaId, g.name, g.busLocation, g.smCount, g.totalMemory
		FROM `+tableGPU+` g
		JOIN `+tableCUDADev+` c ON g.id = c.gpuId
		GROUP BY c.cudaId`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dev       int64
			name, bus sql.NullString
			sms, mem  sql.NullInt64
		)
		if err := rows.Scan(&dev, &name, &bus, &sms, &mem); err != nil {
			return err
		}
		for i := range m.Devices {
			d := &m.Devices[i]
			if d.ID != trace.DeviceID(dev) {
				continue
			}
			d.Name = name.String
			d.PCIBus = bus.String
			d.SMs = int(sms.Int64)
			d.Memory = uint64(mem.Int64)
		}
	}
	return rows.Err()
}

func windowArgs(q trace.Query) []any {
	return []any{int64(q.Window.Start), int64(q.Window.End)}
}

func (s *Nsys) QueryKernelExecs(ctx context.Context, q trace.Query) ([]trace.RawKernel, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT start, [end], deviceId, streamId, correlationId, shortName, demangledName
		FROM ` + tableKernel + ` WHERE [end] >= ? AND start <= ?`)
	args := windowArgs(q)
	if q.HasDevice {
		sb.WriteString(" AND deviceId = ?")
		args = append(args, int64(q.Device))
	}
	sb.WriteString(" ORDER BY start")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.RawKernel
	for rows.Next() {
		var (
			start, end, dev, stream, corr int64
			short, full                   sql.NullInt64
		)
		if err := rows.Scan(&start, &end, &dev, &stream, &corr, &short, &full); err != nil {
			return nil, err
		}
		k := trace.RawKernel{
			Start:       trace.Timestamp(start),
			End:         trace.Timestamp(end),
			Device:      trace.DeviceID(dev),
			Stream:      trace.StreamID(stream),
			Correlation: trace.CorrelationKey(corr),
		}
		if short.Valid {
			k.ShortName = trace.Interned(trace.StringID(short.Int64))
		}
		if full.Valid {
			k.FullName = trace.Interned(trace.StringID(full.Int64))
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Nsys) QueryLaunchCalls(ctx context.Context, q trace.Query) ([]trace.RawLaunch, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT start, [end], globalTid, correlationId, nameId
		FROM ` + tableRuntime + ` WHERE [end] >= ? AND start <= ?`)
	args := windowArgs(q)
	if q.HasThread {
		sb.WriteString(" AND globalTid = ?")
		args = append(args, int64(q.Thread))
	}
	sb.WriteString(" ORDER BY start")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.RawLaunch
	for rows.Next() {
		var (
			start, end, tid, corr int64
			name                  sql.NullInt64
		)
		if err := rows.Scan(&start, &end, &tid, &corr, &name); err != nil {
			return nil, err
		}
		l := trace.RawLaunch{
			Start:       trace.Timestamp(start),
			End:         trace.Timestamp(end),
			Thread:      trace.ThreadID(tid),
			Correlation: trace.CorrelationKey(corr),
		}
		if name.Valid {
			l.API = trace.Interned(trace.StringID(name.Int64))
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Nsys) QueryAnnotations(ctx context.Context, q trace.Query) ([]trace.RawAnnotation, error) {
	if !s.tables[tableNVTX] {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString(`SELECT start, [end], text, textId, globalTid, eventType, domainId
		FROM ` + tableNVTX + `
		WHERE COALESCE([end], start) >= ? AND start <= ?
		  AND eventType IN (?, ?, ?)
		  AND (text IS NOT NULL OR textId IS NOT NULL)`)
	args := append(windowArgs(q), nvtxMark, nvtxPushPop, nvtxStartEnd)
	if q.HasThread {
		sb.WriteString(" AND globalTid = ?")
		args = append(args, int64(q.Thread))
	}
	sb.WriteString(" ORDER BY start")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.RawAnnotation
	for rows.Next() {
		var (
			start, eventType     int64
			end, textID, tid, dm sql.NullInt64
			text                 sql.NullString
		)
		if err := rows.Scan(&start, &end, &text, &textID, &tid, &eventType, &dm); err != nil {
			return nil, err
		}
		a := trace.RawAnnotation{
			Start:   trace.Timestamp(start),
			End:     trace.Timestamp(end.Int64),
			Instant: !end.Valid,
			Thread:  trace.ThreadID(tid.Int64),
			Domain:  trace.DomainID(dm.Int64),
		}
		switch eventType {
		case nvtxPushPop:
			a.Kind = trace.PushPop
		case nvtxStartEnd:
			a.Kind = trace.StartEnd
		case nvtxMark:
			a.Kind = trace.Mark
		}
		if text.Valid {
			a.Text = trace.Inline(text.String)
		} else {
			a.Text = trace.Interned(trace.StringID(textID.Int64))
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
