package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keilerkonzept/kernel-tree-tui/internal/hierarchy"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

// DefaultLaunchPad is how far before the window launch calls and
// annotations are read, so that kernels early in the window still find
// the CPU side that enqueued them.
const DefaultLaunchPad = trace.Timestamp(5 * time.Second)

// Request selects the device and window of a rebuild.
type Request struct {
	Device trace.DeviceID
	Window trace.Window
}

// Result is a built tree ready for display.
type Result struct {
	Request
	Generation uint64
	Tree       *hierarchy.Tree
	Facade     *Facade
	Primary    trace.ThreadID
	// Empty is set when the device had no activity in the window.
	Empty   bool
	Status  string
	Elapsed time.Duration
	Err     error
}

// Loader runs store queries, normalization, primary thread resolution and
// the hierarchy build for one request.
type Loader struct {
	store     trace.Store
	clocks    trace.Clocks
	launchPad trace.Timestamp
	prune     bool
	logger    *zap.Logger
}

type LoaderOption func(*Loader)

func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

func WithClocks(c trace.Clocks) LoaderOption {
	return func(ld *Loader) { ld.clocks = c }
}

func WithLaunchPad(d trace.Timestamp) LoaderOption {
	return func(ld *Loader) { ld.launchPad = max(d, 0) }
}

// WithPruneEmpty builds trees without annotations that launched nothing.
func WithPruneEmpty(v bool) LoaderOption {
	return func(ld *Loader) { ld.prune = v }
}

func NewLoader(store trace.Store, opts ...LoaderOption) *Loader {
	ld := &Loader{store: store, launchPad: DefaultLaunchPad, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

func (ld *Loader) Store() trace.Store { return ld.store }

// Load builds the tree for req. A device without activity yields an empty
// tree and a status message rather than an error.
func (ld *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{Request: req}
	padded := trace.Window{Start: req.Window.Start - ld.launchPad, End: req.Window.End}

	q := trace.Query{Window: req.Window}
	// Both device-independent queries run so that a failing store reports
	// every broken table at once.
	var qerr error
	kernels, err := ld.store.QueryKernelExecs(ctx, q.WithDevice(req.Device))
	if err != nil {
		qerr = multierr.Append(qerr, fmt.Errorf("query kernels: %w", err))
	}
	launches, err := ld.store.QueryLaunchCalls(ctx, trace.Query{Window: padded})
	if err != nil {
		qerr = multierr.Append(qerr, fmt.Errorf("query launch calls: %w", err))
	}
	if qerr != nil {
		return nil, qerr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ev, err := trace.Normalize(trace.RawEvents{Launches: launches, Kernels: kernels}, ld.store, ld.clocks)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	primary, err := hierarchy.PrimaryThread(ev.Launches, ev.Kernels, req.Device)
	if errors.Is(err, trace.ErrNoActivityForDevice) {
		ld.logger.Info("no activity", zap.Uint32("device", uint32(req.Device)), zap.Stringer("window", req.Window))
		res.Empty = true
		res.Status = err.Error()
		res.Tree = hierarchy.Empty(req.Window)
		res.Facade = New(res.Tree)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Primary = primary

	annotations, err := ld.store.QueryAnnotations(ctx, trace.Query{Window: padded}.WithThread(primary))
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	anns, err := trace.Normalize(trace.RawEvents{Annotations: annotations}, ld.store, ld.clocks)
	if err != nil {
		return nil, err
	}
	ev.Annotations = anns.Annotations
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []hierarchy.Option{hierarchy.WithLogger(ld.logger), hierarchy.WithDevice(req.Device)}
	if ld.prune {
		opts = append(opts, hierarchy.WithPruneEmpty())
	}
	res.Tree = hierarchy.Build(ev, primary, req.Window, opts...)
	res.Facade = New(res.Tree)
	res.Status = res.Tree.Status()
	res.Elapsed = time.Since(start)

	st := res.Tree.Stats()
	ld.logger.Debug("tree built",
		zap.Uint32("device", uint32(req.Device)),
		zap.Uint64("primary_thread", uint64(primary)),
		zap.Int("annotations", st.Annotations),
		zap.Int("kernels", st.Kernels),
		zap.Int("orphans", st.Orphans),
		zap.Int("dropped_launches", st.DroppedLaunches),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
