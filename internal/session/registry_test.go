package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func params(user string) Params {
	return Params{
		ConversationID: "c-" + user,
		ScenarioID:     "scn-1",
		PersonaID:      "per-1",
		UserID:         user,
		TargetLanguage: "ko",
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2, time.Minute)

	a, err := r.Create(params("u1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(params("u2")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := r.Create(params("u3")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("error = %v, want ErrCapacityExceeded", err)
	}
	if r.Size() != 2 {
		t.Fatalf("Size() = %d after rejected create, want 2", r.Size())
	}

	// Closing one admits exactly one more.
	if !r.Close(a.ID, "client_close") {
		t.Fatalf("Close() = false, want true")
	}
	if _, err := r.Create(params("u4")); err != nil {
		t.Fatalf("Create() after close error = %v", err)
	}
	if _, err := r.Create(params("u5")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("error = %v, want ErrCapacityExceeded", err)
	}
}

func TestRegistryCloseHookRunsOnce(t *testing.T) {
	r := NewRegistry(4, time.Minute)
	var mu sync.Mutex
	calls := 0
	r.SetCloseHook(func(_ *Session, _ string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	s, err := r.Create(params("u1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Close(s.ID, "client_close")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("close hook ran %d times, want 1", calls)
	}
}

func TestRegistrySweepClosesIdleSessions(t *testing.T) {
	r := NewRegistry(4, 20*time.Millisecond)
	var closedReason string
	r.SetCloseHook(func(_ *Session, reason string) { closedReason = reason })

	idle, _ := r.Create(params("idle"))
	busy, _ := r.Create(params("busy"))

	time.Sleep(30 * time.Millisecond)
	busy.Touch()

	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, ok := r.Get(idle.ID); ok {
		t.Fatalf("idle session should be removed")
	}
	if _, ok := r.Get(busy.ID); !ok {
		t.Fatalf("busy session should survive")
	}
	if closedReason != "inactivity_timeout" {
		t.Fatalf("reason = %q, want inactivity_timeout", closedReason)
	}
	if idle.CloseReason() != "inactivity_timeout" {
		t.Fatalf("CloseReason() = %q, want inactivity_timeout", idle.CloseReason())
	}
	if busy.CloseReason() != "" {
		t.Fatalf("CloseReason() = %q for a live session, want empty", busy.CloseReason())
	}
}

func TestRegistrySweeper(t *testing.T) {
	r := NewRegistry(4, 15*time.Millisecond)
	s, _ := r.Create(params("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartSweeper(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(s.ID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("idle session was not swept")
}

func TestRegistryStatusReportAnonymizes(t *testing.T) {
	r := NewRegistry(10, time.Minute)
	s, _ := r.Create(params("u1"))
	s.SetConnected(true)

	report := r.StatusReport()
	if report.Capacity != 10 || report.Active != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Utilization != 10 {
		t.Fatalf("Utilization = %v, want 10", report.Utilization)
	}
	if len(report.Sessions) != 1 {
		t.Fatalf("Sessions = %d, want 1", len(report.Sessions))
	}
	entry := report.Sessions[0]
	if entry.IDPrefix == s.ID || len(entry.IDPrefix) != 8 {
		t.Fatalf("IDPrefix = %q, want 8-char prefix", entry.IDPrefix)
	}
	if !entry.Connected {
		t.Fatalf("Connected = false, want true")
	}
}
