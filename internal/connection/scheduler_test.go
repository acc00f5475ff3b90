package connection

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptedChecker reports unhealthy for the first failures calls.
type scriptedChecker struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (c *scriptedChecker) CheckHealthy(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.calls > c.failures
}

func (c *scriptedChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestScheduler_DropsRequestWhileInFlight(t *testing.T) {
	m := newTestManager(t, testConfig(), Deps{})

	if !m.RequestReconnection("first") {
		t.Fatal("first request should start a sequence")
	}
	if m.RequestReconnection("second") {
		t.Error("second request should be dropped while one is in flight")
	}

	waitFor(t, time.Second, func() bool { return m.hooks.count() == 1 })
	time.Sleep(30 * time.Millisecond)

	if n := m.hooks.count(); n != 1 {
		t.Errorf("hook calls = %d, want 1", n)
	}
	if got := m.hooks.last(); got != "first" {
		t.Errorf("hook reason = %q, want first", got)
	}
	if got := m.Stats().Counters.ReconnectDropped; got != 1 {
		t.Errorf("ReconnectDropped = %d, want 1", got)
	}
}

func TestScheduler_WaitsForHealthyBackend(t *testing.T) {
	checker := &scriptedChecker{failures: 3}
	m := newTestManager(t, testConfig(), Deps{Checker: checker})

	m.RequestReconnection("transport error")
	waitFor(t, time.Second, func() bool { return m.hooks.count() == 1 })

	if got := checker.count(); got != 4 {
		t.Errorf("health checks = %d, want 4", got)
	}
	if got := m.Stats().Counters.HealthChecksFailed; got != 3 {
		t.Errorf("HealthChecksFailed = %d, want 3", got)
	}
}

func TestScheduler_NoHookWhileBackendDown(t *testing.T) {
	checker := CheckerFunc(func(context.Context) bool { return false })
	m := newTestManager(t, testConfig(), Deps{Checker: checker})

	m.RequestReconnection("transport error")
	time.Sleep(60 * time.Millisecond)

	if n := m.hooks.count(); n != 0 {
		t.Errorf("hook calls = %d, want 0 while backend is down", n)
	}
	if !m.Stats().AttemptInFlight {
		t.Error("attempt should remain in flight while rechecking")
	}
}

func TestScheduler_HealthCheckBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HealthTimeout = 20 * time.Millisecond

	var mu sync.Mutex
	var deadlines []time.Duration
	checker := CheckerFunc(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		mu.Lock()
		if ok {
			deadlines = append(deadlines, time.Until(deadline))
		}
		mu.Unlock()
		<-ctx.Done()
		return false
	})

	m := newTestManager(t, cfg, Deps{Checker: checker})
	m.RequestReconnection("transport error")

	waitFor(t, time.Second, func() bool { return m.Stats().Counters.HealthChecksFailed >= 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(deadlines) == 0 {
		t.Fatal("health check context had no deadline")
	}
	if deadlines[0] > cfg.HealthTimeout {
		t.Errorf("deadline in %v, want at most %v", deadlines[0], cfg.HealthTimeout)
	}
}

func TestScheduler_AttachClearsAttempt(t *testing.T) {
	m := newTestManager(t, testConfig(), Deps{})

	m.RequestReconnection("transport error")
	waitFor(t, time.Second, func() bool { return m.hooks.count() == 1 })

	if !m.Stats().AttemptInFlight {
		t.Fatal("attempt should be in flight until attach")
	}
	if err := m.Attach(&fakeHandle{}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if m.Stats().AttemptInFlight {
		t.Error("attach should clear the in-flight attempt")
	}
}

func TestScheduler_AttachTimeoutRetries(t *testing.T) {
	cfg := testConfig()
	cfg.AttachTimeout = 20 * time.Millisecond

	m := newTestManager(t, cfg, Deps{})

	m.RequestReconnection("transport error")
	waitFor(t, time.Second, func() bool { return m.hooks.count() >= 2 })

	if got := m.Stats().Counters.AttachTimeouts; got < 1 {
		t.Errorf("AttachTimeouts = %d, want at least 1", got)
	}
	if got := m.hooks.last(); got != "transport error" {
		t.Errorf("retry reason = %q, want transport error", got)
	}
}

func TestScheduler_MinSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.MinSpacing = 100 * time.Millisecond

	m := newTestManager(t, cfg, Deps{})
	if err := m.Attach(&fakeHandle{}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	m.Detach("transport error")

	start := time.Now()
	m.RequestReconnection("transport error")
	waitFor(t, time.Second, func() bool { return m.hooks.count() == 1 })

	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("hook fired after %v, want at least the spacing floor", elapsed)
	}
}

func TestScheduler_CancelReconnection(t *testing.T) {
	cfg := testConfig()
	cfg.PongTimeout = 10 * time.Millisecond
	cfg.DropThreshold = 1
	cfg.UnhealthyRecheck = time.Hour

	checker := CheckerFunc(func(context.Context) bool { return false })
	m := newTestManager(t, cfg, Deps{Checker: checker})

	if err := m.Attach(&fakeHandle{}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	m.NotifyBatchReceived()
	waitFor(t, time.Second, func() bool { return m.State() == Reconnecting })
	waitFor(t, time.Second, func() bool { return m.Stats().Counters.HealthChecksFailed >= 1 })

	m.CancelReconnection()

	if m.State() != Disconnected {
		t.Errorf("State = %v, want disconnected", m.State())
	}
	if m.Stats().AttemptInFlight {
		t.Error("attempt should be cleared")
	}
	if n := m.hooks.count(); n != 0 {
		t.Errorf("hook calls = %d, want 0", n)
	}
}

func TestScheduler_DetachCancelsSequence(t *testing.T) {
	cfg := testConfig()
	cfg.UnhealthyRecheck = time.Hour

	checker := CheckerFunc(func(context.Context) bool { return false })
	m := newTestManager(t, cfg, Deps{Checker: checker})

	m.RequestReconnection("transport error")
	waitFor(t, time.Second, func() bool { return m.Stats().Counters.HealthChecksFailed >= 1 })

	m.Detach("user logout")

	if m.Stats().AttemptInFlight {
		t.Error("Detach should cancel the in-flight sequence")
	}
	if !m.RequestReconnection("again") {
		t.Error("a new request should be accepted after cancellation")
	}
}

func TestScheduler_CancelWaitsForRunningHook(t *testing.T) {
	m := newTestManager(t, testConfig(), Deps{})
	m.hooks.entered = make(chan struct{}, 1)
	m.hooks.gate = make(chan struct{})

	m.RequestReconnection("transport error")
	select {
	case <-m.hooks.entered:
	case <-time.After(time.Second):
		t.Fatal("hook was not called")
	}

	cancelled := make(chan struct{})
	go func() {
		m.CancelReconnection()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("CancelReconnection returned while the hook was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(m.hooks.gate)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("CancelReconnection did not return after the hook finished")
	}

	time.Sleep(30 * time.Millisecond)
	if n := m.hooks.count(); n != 1 {
		t.Errorf("hook calls = %d, want 1", n)
	}
	if m.Stats().AttemptInFlight {
		t.Error("attempt should be cleared")
	}
}

func TestScheduler_NoHookAfterCancelDuringSettle(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 30 * time.Millisecond

	checked := make(chan struct{}, 1)
	checker := CheckerFunc(func(context.Context) bool {
		select {
		case checked <- struct{}{}:
		default:
		}
		return true
	})
	m := newTestManager(t, cfg, Deps{Checker: checker})

	m.RequestReconnection("transport error")
	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("health check was not run")
	}
	m.CancelReconnection()

	time.Sleep(60 * time.Millisecond)
	if n := m.hooks.count(); n != 0 {
		t.Errorf("hook calls = %d, want 0 after cancel", n)
	}
}

func TestScheduler_NoHookAfterStop(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 30 * time.Millisecond

	m := newTestManager(t, cfg, Deps{})
	m.RequestReconnection("transport error")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if n := m.hooks.count(); n != 0 {
		t.Errorf("hook calls = %d, want 0 after Stop", n)
	}
}
