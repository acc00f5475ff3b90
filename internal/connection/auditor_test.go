package connection

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestAuditor_CleanStateHasNoViolations(t *testing.T) {
	m := newTestManager(t, testConfig(), Deps{})
	if v := m.audit(); len(v) != 0 {
		t.Errorf("violations = %v, want none", v)
	}

	if err := m.Attach(&fakeHandle{}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if v := m.audit(); len(v) != 0 {
		t.Errorf("violations = %v, want none", v)
	}
}

func TestAuditor_ReportsWithoutRepairing(t *testing.T) {
	m := newTestManager(t, testConfig(), Deps{})

	// Corrupt the state directly: a handle while disconnected.
	h := &fakeHandle{}
	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()

	v := m.audit()
	if len(v) == 0 {
		t.Fatal("expected a violation for a handle in disconnected state")
	}
	if got := m.Stats().Counters.AuditViolations; got != int64(len(v)) {
		t.Errorf("AuditViolations = %d, want %d", got, len(v))
	}

	m.mu.Lock()
	stillThere := m.handle == h
	m.handle = nil
	m.mu.Unlock()
	if !stillThere {
		t.Error("auditor must not repair state")
	}
	if h.isClosed() {
		t.Error("auditor must not close handles")
	}
}

// TestAuditor_RandomOperations drives random operation sequences and checks
// invariants after every step.
func TestAuditor_RandomOperations(t *testing.T) {
	cfg := testConfig()
	cfg.PongTimeout = 2 * time.Millisecond
	cfg.ForegroundInterval = time.Millisecond

	m := newTestManager(t, cfg, Deps{})
	rng := rand.New(rand.NewSource(1))

	var handles []*fakeHandle

	for step := 0; step < 500; step++ {
		switch rng.Intn(8) {
		case 0, 1:
			h := &fakeHandle{}
			if err := m.Attach(h); err != nil {
				h.Close()
			}
			handles = append(handles, h)
		case 2:
			m.Detach("random")
		case 3:
			m.RequestReconnection("random")
		case 4:
			m.CancelReconnection()
		case 5:
			m.NotifyBatchReceived()
		case 6:
			m.OnReply(int64(rng.Intn(5)))
		case 7:
			m.NotifyForeground(rng.Intn(2) == 0)
		}
		if rng.Intn(10) == 0 {
			time.Sleep(3 * time.Millisecond)
		}

		if v := m.audit(); len(v) != 0 {
			t.Fatalf("step %d: violations %v", step, v)
		}
	}

	m.Detach("done")

	// Handles are closed after the mutex is released, so allow a moment.
	waitFor(t, time.Second, func() bool { return liveHandles(handles) == 0 })
}

func liveHandles(handles []*fakeHandle) int {
	live := 0
	for _, h := range handles {
		if !h.isClosed() {
			live++
		}
	}
	return live
}

func TestAuditor_ConcurrentOperations(t *testing.T) {
	cfg := testConfig()
	cfg.PongTimeout = 2 * time.Millisecond
	cfg.ForegroundInterval = time.Millisecond

	m := newTestManager(t, cfg, Deps{})

	var mu sync.Mutex
	var handles []*fakeHandle

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				switch rng.Intn(5) {
				case 0:
					h := &fakeHandle{}
					if err := m.Attach(h); err != nil {
						h.Close()
					}
					mu.Lock()
					handles = append(handles, h)
					mu.Unlock()
				case 1:
					m.Detach("random")
				case 2:
					m.RequestReconnection("random")
				case 3:
					m.NotifyBatchReceived()
				case 4:
					m.HandleInbound([]byte(`{"command":"pong","request_id":1}`))
				}
			}
		}(int64(g))
	}

	stop := make(chan struct{})
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		for {
			select {
			case <-stop:
				return
			default:
				if v := m.audit(); len(v) != 0 {
					t.Errorf("violations during concurrent operations: %v", v)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-auditDone

	mu.Lock()
	defer mu.Unlock()

	// At most one handle is ever live; none once detached.
	waitFor(t, time.Second, func() bool { return liveHandles(handles) <= 1 })
	m.Detach("done")
	waitFor(t, time.Second, func() bool { return liveHandles(handles) == 0 })
}
