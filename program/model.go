package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"

	"github.com/keilerkonzept/kernel-tree-tui/internal/query"
	"github.com/keilerkonzept/kernel-tree-tui/internal/trace"
	"github.com/keilerkonzept/kernel-tree-tui/internal/viewport"
)

const (
	laneLabelWidth    = 12
	maxAnnotationRows = 4
)

type inputMode int

const (
	modeNone inputMode = iota
	modeFilter
	modeMinDuration
	modeBookmarkLabel
	modeBookmarks
)

type rebuiltMsg struct{ res query.Result }

type model struct {
	width, height  int
	leftPaneWidth  int
	rightPaneWidth int
	mainHeight     int

	ctx     context.Context
	session *query.Session
	meta    trace.Meta
	devIdx  int
	req     query.Request

	ready   bool
	loading bool
	facade  *query.Facade
	vp      viewport.State
	status  string
	flash   string
	err     error

	relative  bool
	demangled bool

	mode        inputMode
	pendingSlot int
	input       textinput.Model

	leaderboard list.Model
	bookmarks   list.Model
	help        help.Model
	plot        *plot.Canvas
	plotMax     float64

	metrics *timelineMetrics
}

func newModel(ctx context.Context, session *query.Session, meta trace.Meta, req query.Request) *model {
	const (
		defaultWidth  = 80
		defaultHeight = 20
	)

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = styles.NewStyle().
		Border(styles.NormalBorder(), false, false, false, true).
		BorderForeground(borderColor).
		Foreground(selectedColor).
		Bold(false).
		Padding(0, 0, 0, 1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle.
		Foreground(selectedColor)
	d.ShowDescription = true

	newList := func() list.Model {
		l := list.New(make([]list.Item, 0), d, defaultWidth/2-2, defaultHeight)
		l.Styles.NoItems = l.Styles.NoItems.
			Padding(0, 2)
		l.SetFilteringEnabled(false)
		l.SetShowHelp(false)
		l.SetShowTitle(false)
		l.SetShowStatusBar(false)
		return l
	}

	ti := textinput.New()
	ti.CharLimit = 200

	p := plot.NewCanvas(defaultWidth, defaultHeight)
	p.NumDataPoints = defaultWidth
	p.ShowAxis = false
	p.LineColors = []plot.Color{plot.Red}

	metrics := newTimelineMetrics(config.StatsWindow)
	metrics.setEnabled(config.StatsEnabled)

	m := &model{
		ctx:         ctx,
		session:     session,
		meta:        meta,
		req:         req,
		demangled:   config.Demangled,
		input:       ti,
		leaderboard: newList(),
		bookmarks:   newList(),
		help:        help.New(),
		plot:        &p,
		metrics:     metrics,
	}
	for i, dev := range meta.Devices {
		if dev.ID == req.Device {
			m.devIdx = i
		}
	}
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(defaultWidth, config.ViewSplit)
	return m
}

func (m *model) leftWidth() int {
	if m.leftPaneWidth > 0 {
		return m.leftPaneWidth
	}
	left, _ := computePaneWidths(m.width, config.ViewSplit)
	return left
}

func (m *model) rightWidth() int {
	if m.rightPaneWidth > 0 {
		return m.rightPaneWidth
	}
	_, right := computePaneWidths(m.width, config.ViewSplit)
	return right
}

func (m *model) timelineWidth() int {
	return max(1, m.leftWidth()-laneLabelWidth-1)
}

// rebuildCmd starts a rebuild for m.req. A rebuild still running is
// cancelled and its result dropped.
func (m *model) rebuildCmd() tui.Cmd {
	ctx, gen := m.session.Begin(m.ctx)
	req := m.req
	session := m.session
	m.loading = true
	return func() tui.Msg {
		return rebuiltMsg{session.Rebuild(ctx, gen, req)}
	}
}

func (m *model) Init() tui.Cmd {
	return m.rebuildCmd()
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case rebuiltMsg:
		m.install(msg.res)
		return m, nil
	case tui.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tui.KeyMsg:
		if m.mode != modeNone {
			return m, m.updateInput(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *model) install(res query.Result) {
	if !m.session.Accept(res) {
		m.metrics.observeStale()
		return
	}
	m.loading = false
	m.metrics.observeRebuild(res.Elapsed, res.Err)
	if res.Err != nil {
		m.err = res.Err
		return
	}
	m.err = nil
	m.facade = res.Facade
	m.status = res.Status

	extent := m.facade.Extent()
	if !m.ready {
		m.vp = viewport.New(extent, m.facade.NumLanes())
		m.vp.MinWindow = trace.Timestamp(config.MinWindow)
		if err := m.vp.Apply(
			viewport.SetFilter{Pattern: config.Filter},
			viewport.SetMinDuration{Threshold: trace.Timestamp(config.MinDuration)},
		); err != nil {
			m.flash = err.Error()
		}
		m.ready = true
	} else if err := m.vp.Apply(viewport.Resize{Extent: extent, Streams: m.facade.NumLanes()}); err != nil {
		m.flash = err.Error()
	}
	m.refreshSide()
}

func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(m.width, config.ViewSplit)
	statsLines := 0
	if config.StatsEnabled {
		// title + 4 metric lines
		statsLines = 5
	}
	// status line, detail line and help
	bottomLines := statsLines + 3
	m.mainHeight = max(1, m.height-bottomLines)

	rightW := max(1, m.rightWidth())
	// Right side is the plot with one label line in a border, then the leaderboard.
	plotHeight := max(1, m.mainHeight/3)
	m.resizePlot(max(1, rightW-2), plotHeight)
	listHeight := max(1, m.mainHeight-plotHeight-3)
	m.leaderboard.SetSize(rightW, listHeight)
	m.bookmarks.SetSize(rightW, listHeight)
	m.refreshSide()
}

func (m *model) resizePlot(w int, h int) {
	p := plot.NewCanvas(w, h)
	p.NumDataPoints = 2 * w
	p.ShowAxis = m.plot.ShowAxis
	p.LineColors = m.plot.LineColors
	m.plot = &p
}

// apply runs viewport commands. A rejected command leaves the viewport as
// it was and shows the reason.
func (m *model) apply(cmds ...viewport.Command) {
	if !m.ready {
		return
	}
	if err := m.vp.Apply(cmds...); err != nil {
		m.flash = err.Error()
		return
	}
	m.flash = ""
	m.refreshSide()
}

// columnWidth is the time covered by one timeline cell.
func (m *model) columnWidth() trace.Timestamp {
	return max(1, m.vp.Window.Width()/trace.Timestamp(m.timelineWidth()))
}

func (m *model) handleKey(msg tui.KeyMsg) tui.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		return tui.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.PrevDevice, keys.NextDevice):
		if len(m.meta.Devices) < 2 {
			m.flash = "only one device in trace"
			return nil
		}
		step := 1
		if key.Matches(msg, keys.PrevDevice) {
			step = -1
		}
		m.devIdx = (m.devIdx + step + len(m.meta.Devices)) % len(m.meta.Devices)
		m.req.Device = m.meta.Devices[m.devIdx].ID
		return m.rebuildCmd()
	case key.Matches(msg, keys.Reload):
		return m.rebuildCmd()
	case !m.ready:
	case key.Matches(msg, keys.Left):
		m.apply(viewport.Pan{Delta: -m.columnWidth()})
	case key.Matches(msg, keys.Right):
		m.apply(viewport.Pan{Delta: m.columnWidth()})
	case key.Matches(msg, keys.PageLeft):
		m.apply(viewport.PagePan{Direction: viewport.Backward})
	case key.Matches(msg, keys.PageRight):
		m.apply(viewport.PagePan{Direction: viewport.Forward})
	case key.Matches(msg, keys.Up):
		m.apply(viewport.SelectStream{Delta: -1})
	case key.Matches(msg, keys.Down):
		m.apply(viewport.SelectStream{Delta: 1})
	case key.Matches(msg, keys.NextEvent):
		m.apply(viewport.SnapToEvent{Direction: viewport.Forward, Events: m.facade.Locator(&m.vp)})
	case key.Matches(msg, keys.PrevEvent):
		m.apply(viewport.SnapToEvent{Direction: viewport.Backward, Events: m.facade.Locator(&m.vp)})
	case key.Matches(msg, keys.ZoomIn):
		m.apply(viewport.Zoom{Factor: 1.5})
	case key.Matches(msg, keys.ZoomOut):
		m.apply(viewport.Zoom{Factor: 2.0 / 3})
	case key.Matches(msg, keys.Fit):
		m.apply(viewport.ZoomToFit{})
	case key.Matches(msg, keys.CursorLeft):
		m.apply(viewport.MoveCursor{Delta: -m.columnWidth()})
	case key.Matches(msg, keys.CursorRight):
		m.apply(viewport.MoveCursor{Delta: m.columnWidth()})
	case key.Matches(msg, keys.Home):
		m.apply(viewport.JumpToEdge{Direction: viewport.Backward})
	case key.Matches(msg, keys.End):
		m.apply(viewport.JumpToEdge{Direction: viewport.Forward})
	case key.Matches(msg, keys.Back):
		m.apply(viewport.JumpBack{})
	case key.Matches(msg, keys.NextBookmark):
		m.apply(viewport.CycleBookmark{Direction: viewport.Forward})
	case key.Matches(msg, keys.PrevBookmark):
		m.apply(viewport.CycleBookmark{Direction: viewport.Backward})
	case key.Matches(msg, keys.Slot):
		m.apply(viewport.JumpToBookmark{Slot: int(msg.String()[0] - '0')})
	case key.Matches(msg, keys.Bookmark):
		slot, ok := freeSlot(&m.vp)
		if !ok {
			m.flash = fmt.Sprintf("all %d bookmark slots in use", viewport.MaxBookmarks)
			return nil
		}
		m.pendingSlot = slot
		return m.prompt(modeBookmarkLabel, fmt.Sprintf("bookmark #%d label: ", slot), "")
	case key.Matches(msg, keys.Bookmarks):
		m.mode = modeBookmarks
		return m.updateBookmarkList()
	case key.Matches(msg, keys.Filter):
		return m.prompt(modeFilter, "/", m.vp.Filter.Pattern())
	case key.Matches(msg, keys.ClearFilter):
		m.apply(viewport.SetFilter{})
	case key.Matches(msg, keys.MinDuration):
		value := ""
		if m.vp.MinDuration > 0 {
			value = m.vp.MinDuration.Duration().String()
		}
		return m.prompt(modeMinDuration, "min duration: ", value)
	case key.Matches(msg, keys.Ticks):
		m.apply(viewport.CycleTickDensity{})
	case key.Matches(msg, keys.Axis):
		m.relative = !m.relative
	case key.Matches(msg, keys.Demangle):
		m.demangled = !m.demangled
	}
	return nil
}

func freeSlot(vp *viewport.State) (int, bool) {
	for slot := 1; slot <= viewport.MaxBookmarks; slot++ {
		if _, ok := vp.Bookmark(slot); !ok {
			return slot, true
		}
	}
	return 0, false
}

func (m *model) prompt(mode inputMode, prompt, value string) tui.Cmd {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	return tui.Batch(m.input.Focus(), textinput.Blink)
}

func (m *model) updateInput(msg tui.KeyMsg) tui.Cmd {
	if m.mode == modeBookmarks {
		return m.updateBookmarkPicker(msg)
	}
	switch msg.Type {
	case tui.KeyEsc:
		m.mode = modeNone
		m.input.Blur()
		return nil
	case tui.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modeNone
		m.input.Blur()
		switch mode {
		case modeFilter:
			m.apply(viewport.SetFilter{Pattern: value})
		case modeMinDuration:
			d, err := parseMinDuration(value)
			if err != nil {
				m.flash = err.Error()
				return nil
			}
			m.apply(viewport.SetMinDuration{Threshold: d})
		case modeBookmarkLabel:
			m.apply(viewport.SaveBookmark{Slot: m.pendingSlot, Label: value})
		}
		return nil
	}
	var cmd tui.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func parseMinDuration(s string) (trace.Timestamp, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("min duration: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("min duration must be >= 0")
	}
	return trace.Timestamp(d), nil
}

func (m *model) updateBookmarkPicker(msg tui.KeyMsg) tui.Cmd {
	switch {
	case msg.Type == tui.KeyEsc, key.Matches(msg, keys.Bookmarks), key.Matches(msg, keys.Quit):
		m.mode = modeNone
		return nil
	case msg.Type == tui.KeyEnter:
		m.mode = modeNone
		if it, ok := m.bookmarks.SelectedItem().(bookmarkItem); ok {
			m.apply(viewport.JumpToBookmark{Slot: it.Slot})
		}
		return nil
	case key.Matches(msg, keys.DeleteBookmark):
		if it, ok := m.bookmarks.SelectedItem().(bookmarkItem); ok {
			m.apply(viewport.DeleteBookmark{Slot: it.Slot})
		}
		return m.updateBookmarkList()
	}
	var cmd tui.Cmd
	m.bookmarks, cmd = m.bookmarks.Update(msg)
	return cmd
}

func (m *model) updateBookmarkList() tui.Cmd {
	saved := m.vp.Bookmarks()
	items := make([]list.Item, len(saved))
	for i, b := range saved {
		items[i] = bookmarkItem{Bookmark: b}
	}
	return m.bookmarks.SetItems(items)
}

// streamLanes lists the lanes holding kernels.
func (m *model) streamLanes() []int {
	var out []int
	for i, l := range m.facade.Lanes() {
		if l.IsStream {
			out = append(out, i)
		}
	}
	return out
}

// refreshSide recomputes the leaderboard and the busy plot for the window.
func (m *model) refreshSide() {
	if !m.ready {
		return
	}
	lanes := m.streamLanes()
	var stats []query.KernelStat
	if len(lanes) > 0 {
		stats = query.TopKernels(config.TopK, m.facade.Visible(&m.vp, lanes...))
	}
	m.updateLeaderboard(stats)

	series := busySeries(m.facade, &m.vp, max(1, m.plot.NumDataPoints))
	m.plotMax = 0
	for _, v := range series {
		m.plotMax = max(m.plotMax, v)
	}
	var highlight plot.Color
	if styles.DefaultRenderer().HasDarkBackground() {
		highlight = plot.Red
	} else {
		highlight = plot.Black
	}
	m.plot.LineColors = []plot.Color{highlight}
	m.plot.Fill([][]float64{series})
}

func (m *model) updateLeaderboard(stats []query.KernelStat) {
	items := make([]list.Item, len(stats))
	numDecimals := 1 + int(math.Ceil(math.Log10(float64(config.TopK+1))))
	padToItemRankWidth := strings.Repeat(" ", numDecimals+1)
	itemRankFormat := "#%-" + fmt.Sprint(numDecimals) + "d"
	for i, st := range stats {
		items[i] = listItem{
			DescriptionPrefix: padToItemRankWidth,
			TitlePrefix:       fmt.Sprintf(itemRankFormat, i+1),
			KernelStat:        st,
		}
	}
	m.leaderboard.SetItems(items)
}

func (m *model) View() string {
	start := time.Now()
	defer func() { m.metrics.observeFrame(time.Since(start)) }()

	if !m.ready {
		msg := "loading trace…"
		if m.err != nil {
			msg = "ERROR: " + m.err.Error()
		}
		return styles.JoinVertical(styles.Left, msg, m.help.View(keys))
	}

	left := styles.NewStyle().Width(m.leftWidth()).Height(m.mainHeight).
		Render(strings.Join(m.timelineLines(), "\n"))

	plotView := m.plot.String()
	plotLabel := truncate(fmt.Sprintf("busy streams (max %.0f)", m.plotMax), max(0, m.rightWidth()-2))
	right := plotStyle.Render(styles.JoinVertical(styles.Top, plotView, plotLabel))
	if m.mode == modeBookmarks {
		right = styles.JoinVertical(styles.Left, right, selectedFg.Render("bookmarks (enter jump, x delete, esc close)"), m.bookmarks.View())
	} else {
		right = styles.JoinVertical(styles.Left, right, borderFg.Render("top kernels in window"), m.leaderboard.View())
	}
	view := styles.JoinHorizontal(styles.Top, left, right)

	lines := []string{view, m.detailLine()}
	switch m.mode {
	case modeFilter, modeMinDuration, modeBookmarkLabel:
		lines = append(lines, m.input.View())
	default:
		lines = append(lines, m.statusLine())
	}
	if config.StatsEnabled {
		statsStyle := styles.NewStyle().Foreground(styles.AdaptiveColor{Light: "1", Dark: "9"})
		lines = append(lines, statsStyle.Render(strings.Join(m.statsBlock(), "\n")))
	}
	lines = append(lines, m.help.View(keys))
	return styles.JoinVertical(styles.Left, lines...)
}

// timelineLines renders the header, every lane and the axis, scrolled so
// that the selected lane stays visible.
func (m *model) timelineLines() []string {
	width := m.timelineWidth()
	dev := m.meta.Devices[m.devIdx]
	header := fmt.Sprintf("GPU %d  %s  zoom %.1fx", dev.ID, m.vp.Window, m.vp.ZoomFactor())
	if m.vp.Filter.Active() {
		header += "  filter " + m.vp.Filter.Pattern()
	}
	if m.vp.MinDuration > 0 {
		header += "  ≥" + trace.FormatDuration(m.vp.MinDuration)
	}
	if m.loading {
		header += "  (rebuilding)"
	}

	pad := strings.Repeat(" ", laneLabelWidth+1)
	var body []string
	selFirst, selLast := 0, 0
	for li := range m.facade.NumLanes() {
		l, _ := m.facade.Lane(li)
		lines := laneLines(m.facade, &m.vp, li, width, maxAnnotationRows, m.demangled)
		name := fmt.Sprintf("%-*s", laneLabelWidth, truncate(l.Name, laneLabelWidth))
		style := borderFg
		lineStyle := styles.NewStyle().Foreground(kernelFg)
		if !l.IsStream {
			lineStyle = styles.NewStyle().Foreground(annotationFg)
		}
		if li == m.vp.Stream {
			style = selectedFg
			selFirst, selLast = len(body), len(body)+len(lines)-1
		}
		for i, line := range lines {
			label := pad
			if i == 0 {
				label = style.Render(name) + " "
			}
			body = append(body, label+lineStyle.Render(line))
		}
	}

	room := max(1, m.mainHeight-3)
	if len(body) > room {
		first := 0
		if selLast >= room {
			first = min(selLast-room+1, len(body)-room)
		}
		first = min(first, selFirst)
		body = body[first : first+room]
	}

	out := []string{truncate(header, m.leftWidth()), pad + cursorLine(&m.vp, width)}
	out = append(out, body...)
	return append(out, pad+axisLine(&m.vp, width, m.relative))
}

// detailLine describes the event under the cursor on the selected lane.
func (m *model) detailLine() string {
	r, ok := m.facade.At(m.vp.Stream, m.vp.Event)
	if !ok || r.Start != m.vp.Cursor {
		r, ok = m.facade.Nearest(&m.vp, m.vp.Stream, m.vp.Cursor)
	}
	if !ok {
		return borderFg.Render("no event on this lane")
	}
	name := r.Label
	if m.demangled && r.FullName != "" {
		name = r.FullName
	}
	var sb strings.Builder
	sb.WriteString(selectedFg.Render(name))
	if r.Lane != query.AnnotationLane {
		fmt.Fprintf(&sb, " [stream %d]", r.Stream)
	}
	fmt.Fprintf(&sb, " %s at %s", trace.FormatDuration(r.Duration()), trace.FormatTimestamp(r.Start))
	if r.Orphan {
		sb.WriteString(" (no launch call)")
	} else if path := m.facade.Tree().PathString(r.ID); path != "" {
		sb.WriteString("  " + path)
	}
	return styles.NewStyle().MaxWidth(max(m.width, 1)).Render(sb.String())
}

func (m *model) statusLine() string {
	var parts []string
	if m.err != nil {
		parts = append(parts, "ERROR: "+m.err.Error())
	}
	if m.flash != "" {
		parts = append(parts, m.flash)
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if len(parts) == 0 {
		return borderFg.Render(fmt.Sprintf("%d lanes, %s", m.facade.NumLanes(), m.vp.Density))
	}
	errStyle := styles.NewStyle().Foreground(orphanFg)
	return errStyle.Render(strings.Join(parts, " · "))
}

func (m *model) statsBlock() []string {
	snap := m.metrics.snapshot()
	title := "PERF STATS"
	if m.loading {
		title = "PERF STATS (REBUILDING)"
	}
	since := "n/a"
	if !snap.lastRebuild.IsZero() {
		since = time.Since(snap.lastRebuild).Truncate(time.Millisecond).String()
	}
	st := m.facade.Tree().Stats()
	return []string{
		title,
		fmt.Sprintf("rebuilds: %d accepted, %d stale, %d failed (last %s ago)", snap.accepted, snap.stale, snap.failed, since),
		fmt.Sprintf("rebuild latency: last %s avg %s max %s", formatMetricDuration(snap.rebuild.last), formatMetricDuration(snap.rebuild.avg), formatMetricDuration(snap.rebuild.max)),
		fmt.Sprintf("frame time: last %s avg %s", formatMetricDuration(snap.frame.last), formatMetricDuration(snap.frame.avg)),
		fmt.Sprintf("tree: %d ranges, %d kernels, %d orphans, %d dropped launches", st.Annotations, st.Kernels, st.Orphans, st.DroppedLaunches),
	}
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}

func computePaneWidths(totalWidth int, splitPercent int) (left, right int) {
	if totalWidth <= 1 {
		return 1, 1
	}
	left = totalWidth * splitPercent / 100
	left = min(max(left, 1), totalWidth-1)
	right = totalWidth - left

	// Keep panes readable when the terminal is wide enough.
	const minPane = 24
	if totalWidth >= minPane*2 {
		if left < minPane {
			left = minPane
			right = totalWidth - left
		}
		if right < minPane {
			right = minPane
			left = totalWidth - right
		}
	}
	return max(left, 1), max(right, 1)
}

type listItem struct {
	DescriptionPrefix string
	TitlePrefix       string
	query.KernelStat
}

func (i listItem) Title() string { return fmt.Sprintf("%s %s", i.TitlePrefix, i.Name) }
func (i listItem) Description() string {
	return fmt.Sprintf("%s %s  %.1f%%  (%dx)", i.DescriptionPrefix, trace.FormatDuration(i.Total), i.Pct, i.Count)
}
func (i listItem) FilterValue() string { return i.Name }

type bookmarkItem struct {
	viewport.Bookmark
}

func (i bookmarkItem) Title() string       { return fmt.Sprintf("#%d %s", i.Slot, i.Label) }
func (i bookmarkItem) Description() string { return i.Window.String() }
func (i bookmarkItem) FilterValue() string { return i.Label }

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Help, k.Left, k.Up, k.ZoomIn, k.NextEvent, k.Filter, k.Bookmark}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Help, k.Reload, k.PrevDevice, k.NextDevice},
		{k.Left, k.Right, k.PageLeft, k.PageRight, k.Home, k.End},
		{k.Up, k.Down, k.NextEvent, k.PrevEvent, k.CursorLeft, k.CursorRight},
		{k.ZoomIn, k.ZoomOut, k.Fit, k.Ticks, k.Axis, k.Demangle},
		{k.Bookmark, k.Bookmarks, k.Slot, k.NextBookmark, k.PrevBookmark, k.Back},
		{k.Filter, k.ClearFilter, k.MinDuration},
	}
}

type keyMap struct {
	Left           key.Binding
	Right          key.Binding
	PageLeft       key.Binding
	PageRight      key.Binding
	Up             key.Binding
	Down           key.Binding
	NextEvent      key.Binding
	PrevEvent      key.Binding
	ZoomIn         key.Binding
	ZoomOut        key.Binding
	Fit            key.Binding
	CursorLeft     key.Binding
	CursorRight    key.Binding
	Home           key.Binding
	End            key.Binding
	Bookmark       key.Binding
	Bookmarks      key.Binding
	DeleteBookmark key.Binding
	Slot           key.Binding
	NextBookmark   key.Binding
	PrevBookmark   key.Binding
	Back           key.Binding
	Filter         key.Binding
	ClearFilter    key.Binding
	MinDuration    key.Binding
	Ticks          key.Binding
	Axis           key.Binding
	Demangle       key.Binding
	PrevDevice     key.Binding
	NextDevice     key.Binding
	Reload         key.Binding
	Help           key.Binding
	Quit           key.Binding
}

var keys = keyMap{
	Left: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "pan left"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "pan right"),
	),
	PageLeft: key.NewBinding(
		key.WithKeys("pgup", "shift+left", "H"),
		key.WithHelp("pgup/H", "page left"),
	),
	PageRight: key.NewBinding(
		key.WithKeys("pgdown", "shift+right", "L"),
		key.WithHelp("pgdn/L", "page right"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "lane up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "lane down"),
	),
	NextEvent: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next event"),
	),
	PrevEvent: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev event"),
	),
	ZoomIn: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+/-", "zoom"),
	),
	ZoomOut: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "zoom out"),
	),
	Fit: key.NewBinding(
		key.WithKeys("0", "f"),
		key.WithHelp("0/f", "fit"),
	),
	CursorLeft: key.NewBinding(
		key.WithKeys("<"),
		key.WithHelp("<", "cursor left"),
	),
	CursorRight: key.NewBinding(
		key.WithKeys(">"),
		key.WithHelp(">", "cursor right"),
	),
	Home: key.NewBinding(
		key.WithKeys("home", "g"),
		key.WithHelp("home/g", "start"),
	),
	End: key.NewBinding(
		key.WithKeys("end", "G"),
		key.WithHelp("end/G", "end"),
	),
	Bookmark: key.NewBinding(
		key.WithKeys("B"),
		key.WithHelp("B", "bookmark"),
	),
	Bookmarks: key.NewBinding(
		key.WithKeys("'"),
		key.WithHelp("'", "bookmarks"),
	),
	DeleteBookmark: key.NewBinding(
		key.WithKeys("x", "delete"),
		key.WithHelp("x", "delete bookmark"),
	),
	Slot: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "go to bookmark"),
	),
	NextBookmark: key.NewBinding(
		key.WithKeys("."),
		key.WithHelp(".", "next bookmark"),
	),
	PrevBookmark: key.NewBinding(
		key.WithKeys(","),
		key.WithHelp(",", "prev bookmark"),
	),
	Back: key.NewBinding(
		key.WithKeys("`", "backspace"),
		key.WithHelp("`", "jump back"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	ClearFilter: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "clear filter"),
	),
	MinDuration: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "min duration"),
	),
	Ticks: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "tick density"),
	),
	Axis: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "abs/rel axis"),
	),
	Demangle: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "demangled names"),
	),
	PrevDevice: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "prev GPU"),
	),
	NextDevice: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "next GPU"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rebuild"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q/ctrl+c", "quit"),
	),
}
