package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tui "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keilerkonzept/kernel-tree-tui/internal/export"
	"github.com/keilerkonzept/kernel-tree-tui/internal/logutil"
	"github.com/keilerkonzept/kernel-tree-tui/internal/query"
	"github.com/keilerkonzept/kernel-tree-tui/internal/store"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
)

type runFunc func(ctx context.Context, st trace.Store, w io.Writer) error

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kernel-tree",
		Short: "Navigate GPU kernels under the annotation ranges that launched them",
		Long: `kernel-tree reads an Nsight Systems SQLite export, correlates CUDA
launch calls with kernel executions and nests the kernels under the NVTX
ranges of the thread that launched most of them.

Without a subcommand it opens the interactive timeline.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		RunE:              withStore(runTUI),
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&config.DBPath, "db", config.DBPath, "Nsight Systems SQLite export to read")
	pf.IntVar(&config.Device, "device", config.Device, "CUDA device id (-1 = first device with kernels)")
	pf.DurationVar(&config.Start, "start", config.Start, "Window start, relative to the first kernel")
	pf.DurationVar(&config.End, "end", config.End, "Window end, relative to the first kernel (0 = end of trace)")
	pf.DurationVar(&config.LaunchPad, "launch-pad", config.LaunchPad, "How far before the window launch calls and ranges are read")
	pf.BoolVar(&config.PruneEmpty, "prune-empty", config.PruneEmpty, "Drop ranges that launched no kernel")
	pf.StringVar(&config.LogFile, "log-file", config.LogFile, "Write logs to this file (\"-\" = stderr)")
	pf.BoolVar(&config.Debug, "debug", config.Debug, "Enable debug logging")
	addTUIFlags(rootCmd.Flags())

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive timeline (default)",
		Args:  cobra.NoArgs,
		RunE:  withStore(runTUI),
	}
	addTUIFlags(tuiCmd.Flags())

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the kernel hierarchy",
		Args:  cobra.NoArgs,
		RunE:  withStore(runTree),
	}
	f := treeCmd.Flags()
	f.StringVar(&config.TreeFormat, "format", config.TreeFormat, "Output format: text, markdown or json")
	f.BoolVar(&config.Color, "color", config.Color, "Colorize text output on terminals")
	f.BoolVar(&config.FullNames, "full-names", config.FullNames, "Print demangled kernel names")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export kernels as CSV, flat JSON or a Perfetto trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Output == "" {
				return withStore(runExport)(cmd, args)
			}
			out, err := os.Create(config.Output)
			if err != nil {
				return err
			}
			err = withStoreTo(runExport, out)(cmd, args)
			return multierr.Append(err, out.Close())
		},
	}
	f = exportCmd.Flags()
	f.StringVar(&config.ExportFormat, "format", config.ExportFormat, "Output format: csv, json or perfetto")
	f.StringVarP(&config.Output, "output", "o", config.Output, "Write to this file instead of stdout")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize GPU utilization and the heaviest kernels",
		Args:  cobra.NoArgs,
		RunE:  withStore(runSummary),
	}
	f = summaryCmd.Flags()
	f.IntVar(&config.TopK, "top-k", config.TopK, "Number of kernels to rank")
	f.BoolVar(&config.JSON, "json", config.JSON, "Print JSON")

	searchCmd := &cobra.Command{
		Use:   "search <kernel-pattern>",
		Short: "Find kernels by name, optionally under a matching range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st trace.Store, w io.Writer) error {
				return runSearch(ctx, st, w, args[0])
			})(cmd, args)
		},
	}
	searchCmd.Flags().StringVar(&config.Parent, "parent", config.Parent, "Only kernels below a range matching this pattern")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "List devices, streams and the trace time range",
		Args:  cobra.NoArgs,
		RunE:  withStore(runInfo),
	}

	rootCmd.AddCommand(tuiCmd, treeCmd, exportCmd, summaryCmd, searchCmd, infoCmd)
	return rootCmd
}

func addTUIFlags(f *pflag.FlagSet) {
	f.BoolVar(&config.AltScreen, "alt-screen", config.AltScreen, "Use the terminal alternate screen buffer")
	f.BoolVar(&config.StatsEnabled, "stats", config.StatsEnabled, "Show rebuild and render stats")
	f.IntVar(&config.StatsWindow, "stats-window", config.StatsWindow, "Number of recent samples kept per metric")
	f.DurationVar(&config.MinWindow, "min-window", config.MinWindow, "Narrowest window zooming can reach")
	f.IntVar(&config.TopK, "top-k", config.TopK, "Number of kernels in the leaderboard")
	f.DurationVar(&config.MinDuration, "min-duration", config.MinDuration, "Hide events shorter than this")
	f.StringVar(&config.Filter, "filter", config.Filter, "Initial name filter (regexp, or substring if it does not compile)")
	f.IntVar(&config.ViewSplit, "view-split", config.ViewSplit, "Split the view at this % of the total screen width [20,90]")
	f.BoolVar(&config.Demangled, "demangled", config.Demangled, "Show demangled kernel names")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := validateAndNormalizeConfig(); err != nil {
		return err
	}
	path := config.LogFile
	if path == "" && !interactive(cmd) {
		path = "-"
	}
	return logutil.InitLogger(path, config.Debug)
}

func interactive(cmd *cobra.Command) bool {
	return cmd.Name() == "tui" || !cmd.HasParent()
}

func withStore(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withStoreTo(fn, cmd.OutOrStdout())(cmd, args)
	}
}

func withStoreTo(fn runFunc, w io.Writer) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		logger := logutil.GetLogger()
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		st, err := store.Open(ctx, config.DBPath, logger)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		return fn(ctx, st, w)
	}
}

// resolveRequest picks the device and converts the configured offsets into
// a window on the trace timeline.
func resolveRequest(meta trace.Meta) (query.Request, trace.DeviceInfo, error) {
	if len(meta.Devices) == 0 {
		return query.Request{}, trace.DeviceInfo{}, fmt.Errorf("no kernel activity in trace")
	}
	dev := meta.Devices[0]
	if config.Device >= 0 {
		d, ok := meta.Device(trace.DeviceID(config.Device))
		if !ok {
			ids := make([]string, len(meta.Devices))
			for i, d := range meta.Devices {
				ids[i] = fmt.Sprint(d.ID)
			}
			return query.Request{}, trace.DeviceInfo{}, fmt.Errorf("device %d not found (have %s)", config.Device, strings.Join(ids, ", "))
		}
		dev = d
	}

	w := trace.Window{Start: meta.Extent.Start + trace.Timestamp(config.Start), End: meta.Extent.End}
	if config.End > 0 {
		w.End = min(w.End, meta.Extent.Start+trace.Timestamp(config.End))
	}
	if !w.Valid() {
		return query.Request{}, trace.DeviceInfo{}, fmt.Errorf("window %s is empty (trace spans %s)", w, meta.Extent)
	}
	return query.Request{Device: dev.ID, Window: w}, dev, nil
}

func newLoader(st trace.Store, logger *zap.Logger) *query.Loader {
	return query.NewLoader(st,
		query.WithLogger(logger),
		query.WithLaunchPad(trace.Timestamp(config.LaunchPad)),
		query.WithPruneEmpty(config.PruneEmpty),
	)
}

func load(ctx context.Context, st trace.Store) (*query.Result, trace.DeviceInfo, error) {
	logger := logutil.GetLogger()
	meta, err := st.Meta(ctx)
	if err != nil {
		return nil, trace.DeviceInfo{}, fmt.Errorf("reading trace metadata: %w", err)
	}
	req, dev, err := resolveRequest(meta)
	if err != nil {
		return nil, dev, err
	}
	res, err := newLoader(st, logger).Load(ctx, req)
	if err != nil {
		return nil, dev, err
	}
	if res.Status != "" {
		logger.Warn(res.Status, zap.Uint32("device", uint32(dev.ID)))
	}
	return res, dev, nil
}

func runTree(ctx context.Context, st trace.Store, w io.Writer) error {
	res, _, err := load(ctx, st)
	if err != nil {
		return err
	}
	switch config.TreeFormat {
	case "", "text":
		return export.Text(w, res.Tree, export.TextOptions{
			Color:     config.Color && isTerminal(w),
			FullNames: config.FullNames,
		})
	case "markdown", "md":
		return export.Markdown(w, res.Tree)
	case "json":
		return export.WriteJSONTree(w, res.Tree)
	default:
		return fmt.Errorf("unknown --format %q (want text, markdown or json)", config.TreeFormat)
	}
}

func runExport(ctx context.Context, st trace.Store, w io.Writer) error {
	res, _, err := load(ctx, st)
	if err != nil {
		return err
	}
	switch config.ExportFormat {
	case "", "csv":
		return export.WriteCSV(w, export.KernelRows(res.Tree))
	case "json":
		return export.WriteFlatJSON(w, export.KernelRows(res.Tree))
	case "perfetto", "chrome":
		return export.WritePerfetto(w, res.Tree)
	default:
		return fmt.Errorf("unknown --format %q (want csv, json or perfetto)", config.ExportFormat)
	}
}

func runSummary(ctx context.Context, st trace.Store, w io.Writer) error {
	res, dev, err := load(ctx, st)
	if err != nil {
		return err
	}
	s := query.Summarize(res.Facade, dev, config.TopK)
	if config.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaryJSON(s))
	}

	fmt.Fprintln(w, deviceLine(dev))
	fmt.Fprintf(w, "kernels: %d  span: %s  compute: %s  idle: %s  utilization: %.1f%%\n",
		s.Kernels, trace.FormatDuration(s.Span), trace.FormatDuration(s.Compute), trace.FormatDuration(s.Idle), s.Utilization)
	if len(s.Streams) > 0 {
		fmt.Fprintln(w, "streams:")
		for _, ss := range s.Streams {
			fmt.Fprintf(w, "  stream %-4d %6d kernels  %s\n", ss.Stream, ss.Kernels, trace.FormatDuration(ss.Total))
		}
	}
	if len(s.TopKernels) > 0 {
		fmt.Fprintln(w, "top kernels:")
		for i, k := range s.TopKernels {
			fmt.Fprintf(w, "  #%-3d %-40s %10s %6.1f%%  (%dx)\n", i+1, k.Name, trace.FormatDuration(k.Total), k.Pct, k.Count)
		}
	}
	if s.Status != "" {
		fmt.Fprintln(w, "warnings:", s.Status)
	}
	return nil
}

type kernelStatJSON struct {
	Name    string  `json:"name"`
	TotalMs float64 `json:"total_ms"`
	Count   int     `json:"count"`
	Pct     float64 `json:"pct"`
}

type streamStatJSON struct {
	Stream  uint32  `json:"stream"`
	Kernels int     `json:"kernels"`
	TotalMs float64 `json:"total_ms"`
}

func summaryJSON(s query.Summary) map[string]any {
	ms := func(ts trace.Timestamp) float64 { return float64(ts) / 1e6 }
	top := make([]kernelStatJSON, len(s.TopKernels))
	for i, k := range s.TopKernels {
		top[i] = kernelStatJSON{Name: k.Name, TotalMs: ms(k.Total), Count: k.Count, Pct: k.Pct}
	}
	streams := make([]streamStatJSON, len(s.Streams))
	for i, ss := range s.Streams {
		streams[i] = streamStatJSON{Stream: uint32(ss.Stream), Kernels: ss.Kernels, TotalMs: ms(ss.Total)}
	}
	return map[string]any{
		"device":          s.Device.ID,
		"name":            s.Device.Name,
		"kernels":         s.Kernels,
		"span_ms":         ms(s.Span),
		"compute_ms":      ms(s.Compute),
		"idle_ms":         ms(s.Idle),
		"utilization_pct": s.Utilization,
		"streams":         streams,
		"top_kernels":     top,
		"status":          s.Status,
	}
}

func runSearch(ctx context.Context, st trace.Store, w io.Writer, pattern string) error {
	res, _, err := load(ctx, st)
	if err != nil {
		return err
	}
	matches := res.Facade.Search(config.Parent, pattern)
	for _, m := range matches {
		path := strings.Join(m.Path, " > ")
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "%s  %s [stream %d] %s  %s\n",
			trace.FormatTimestamp(m.Kernel.Start), m.Kernel.Label, m.Kernel.Stream, trace.FormatDuration(m.Kernel.Duration()), path)
	}
	fmt.Fprintf(w, "%d matches\n", len(matches))
	return nil
}

func runInfo(ctx context.Context, st trace.Store, w io.Writer) error {
	meta, err := st.Meta(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "time range: %s (%s)\n", meta.Extent, trace.FormatDuration(meta.Extent.Width()))
	fmt.Fprintf(w, "kernels: %d  launch calls: %d  ranges: %d\n", meta.Kernels, meta.Launches, meta.Annotations)
	for _, d := range meta.Devices {
		streams := make([]string, len(d.Streams))
		for i, s := range d.Streams {
			streams[i] = fmt.Sprint(s)
		}
		fmt.Fprintf(w, "%s\n  %d kernels on streams %s\n", deviceLine(d), d.Kernels, strings.Join(streams, ", "))
	}
	return nil
}

func deviceLine(d trace.DeviceInfo) string {
	line := fmt.Sprintf("GPU %d", d.ID)
	if d.Name == "" {
		return line
	}
	line += ": " + d.Name
	var extra []string
	if d.SMs > 0 {
		extra = append(extra, fmt.Sprintf("%d SMs", d.SMs))
	}
	if d.Memory > 0 {
		extra = append(extra, fmt.Sprintf("%.1f GiB", float64(d.Memory)/(1<<30)))
	}
	if d.PCIBus != "" {
		extra = append(extra, "PCI "+d.PCIBus)
	}
	if len(extra) > 0 {
		line += " (" + strings.Join(extra, ", ") + ")"
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// runTUI opens the timeline. When stdout is not a terminal it prints the
// per-stream kernel counts of the selected device instead.
func runTUI(ctx context.Context, st trace.Store, w io.Writer) error {
	if !isTerminal(w) {
		return printStreamCounts(ctx, st, w)
	}
	logger := logutil.GetLogger()
	meta, err := st.Meta(ctx)
	if err != nil {
		return fmt.Errorf("reading trace metadata: %w", err)
	}
	req, _, err := resolveRequest(meta)
	if err != nil {
		return err
	}

	session := query.NewSession(newLoader(st, logger), logger)
	defer session.Close()

	m := newModel(ctx, session, meta, req)
	opts := []tui.ProgramOption{tui.WithInputTTY(), tui.WithContext(ctx)}
	if config.AltScreen {
		opts = append(opts, tui.WithAltScreen())
	}
	start := time.Now()
	_, err = tui.NewProgram(m, opts...).Run()
	logger.Info("timeline closed", zap.Duration("uptime", time.Since(start)), zap.Error(err))
	return err
}

func printStreamCounts(ctx context.Context, st trace.Store, w io.Writer) error {
	res, dev, err := load(ctx, st)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, deviceLine(dev))
	if res.Empty {
		fmt.Fprintln(w, res.Status)
		return nil
	}
	s := query.Summarize(res.Facade, dev, 1)
	for _, ss := range s.Streams {
		fmt.Fprintf(w, "stream %d: %d kernels\n", ss.Stream, ss.Kernels)
	}
	return nil
}
