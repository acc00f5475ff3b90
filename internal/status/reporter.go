package status

import (
	"log/slog"
	"sync"
	"time"
)

// Notifier receives emitted summaries. It is called with the reporter's lock
// held, so it must not call back into the reporter.
type Notifier interface {
	Notify(Summary)
}

// NotifierFunc is a function adapter for Notifier.
type NotifierFunc func(Summary)

func (f NotifierFunc) Notify(s Summary) {
	f(s)
}

// ReporterStats contains emission counters.
type ReporterStats struct {
	Emitted    int64
	Duplicates int64 // Dropped because the text was unchanged
	Deferred   int64 // Held back by the rate limit
}

// Reporter rate-limits and de-duplicates summaries before they reach the
// notifier. An update held back by the rate limit is emitted when the window
// closes, unless a later update superseded it.
type Reporter struct {
	minInterval time.Duration
	notifier    Notifier
	logger      *slog.Logger

	mu       sync.Mutex
	lastText string
	lastEmit time.Time
	last     Summary
	pending  *Summary
	timer    *time.Timer
	stopped  bool
	stats    ReporterStats
}

// NewReporter creates a reporter. A nil notifier discards summaries but
// still tracks the latest one.
func NewReporter(minInterval time.Duration, notifier Notifier, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Summary) {})
	}
	return &Reporter{
		minInterval: minInterval,
		notifier:    notifier,
		logger:      logger,
	}
}

// Publish offers a summary. Returns true if it was emitted immediately.
func (r *Reporter) Publish(s Summary) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}

	if s.Text == r.lastText {
		// A newer update reverted whatever was pending.
		r.pending = nil
		r.stats.Duplicates++
		return false
	}

	now := time.Now()
	elapsed := now.Sub(r.lastEmit)
	if r.lastEmit.IsZero() || elapsed >= r.minInterval {
		r.emitLocked(s, now)
		return true
	}

	if r.pending == nil || r.pending.Text != s.Text {
		r.stats.Deferred++
	}
	r.pending = &s
	if r.timer == nil {
		r.timer = time.AfterFunc(r.minInterval-elapsed, r.flush)
	}
	return false
}

// Last returns the most recently emitted summary.
func (r *Reporter) Last() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, !r.lastEmit.IsZero()
}

// Stats returns emission counters.
func (r *Reporter) Stats() ReporterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Stop cancels any deferred emission.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reporter) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timer = nil
	if r.stopped || r.pending == nil {
		return
	}
	s := *r.pending
	r.pending = nil
	if s.Text == r.lastText {
		return
	}
	r.emitLocked(s, time.Now())
}

func (r *Reporter) emitLocked(s Summary, now time.Time) {
	r.lastText = s.Text
	r.lastEmit = now
	r.last = s
	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.stats.Emitted++

	r.logger.Debug("status summary emitted", "tier", s.Tier, "text", s.Text)
	r.notifier.Notify(s)
}
