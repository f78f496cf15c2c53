package main

import (
	"sync/atomic"
	"time"
)

type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	r.buf[r.idx] = d
	r.idx = (r.idx + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

type durationStats struct {
	last time.Duration
	max  time.Duration
	avg  time.Duration
	n    int
}

func (r *durationRing) snapshot() durationStats {
	if r.count == 0 {
		return durationStats{}
	}
	var sum, longest time.Duration
	for _, d := range r.buf[:r.count] {
		sum += d
		longest = max(longest, d)
	}
	lastIdx := (r.idx - 1 + len(r.buf)) % len(r.buf)
	return durationStats{
		last: r.buf[lastIdx],
		max:  longest,
		avg:  sum / time.Duration(r.count),
		n:    r.count,
	}
}

// timelineMetrics tracks rebuild and render latency. The rings are used from
// the bubbletea event loop only.
type timelineMetrics struct {
	enabled atomic.Bool

	rebuilds    *durationRing
	frames      *durationRing
	accepted    atomic.Uint64
	stale       atomic.Uint64
	failed      atomic.Uint64
	lastRebuild atomic.Int64
}

func newTimelineMetrics(window int) *timelineMetrics {
	return &timelineMetrics{
		rebuilds: newDurationRing(window),
		frames:   newDurationRing(window),
	}
}

func (m *timelineMetrics) setEnabled(v bool) { m.enabled.Store(v) }
func (m *timelineMetrics) isEnabled() bool   { return m.enabled.Load() }

func (m *timelineMetrics) observeRebuild(d time.Duration, err error) {
	if !m.isEnabled() {
		return
	}
	if err != nil {
		m.failed.Add(1)
		return
	}
	m.rebuilds.add(d)
	m.accepted.Add(1)
	m.lastRebuild.Store(time.Now().UnixNano())
}

func (m *timelineMetrics) observeStale() {
	if m.isEnabled() {
		m.stale.Add(1)
	}
}

func (m *timelineMetrics) observeFrame(d time.Duration) {
	if m.isEnabled() {
		m.frames.add(d)
	}
}

type metricsSnapshot struct {
	accepted    uint64
	stale       uint64
	failed      uint64
	lastRebuild time.Time
	rebuild     durationStats
	frame       durationStats
}

func (m *timelineMetrics) snapshot() metricsSnapshot {
	if !m.isEnabled() {
		return metricsSnapshot{}
	}
	var last time.Time
	if ns := m.lastRebuild.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return metricsSnapshot{
		accepted:    m.accepted.Load(),
		stale:       m.stale.Load(),
		failed:      m.failed.Load(),
		lastRebuild: last,
		rebuild:     m.rebuilds.snapshot(),
		frame:       m.frames.snapshot(),
	}
}
