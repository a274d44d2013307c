package arrival

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConfirmBeforeDeadline(t *testing.T) {
	m := NewManager(func(tripID, holdID, driverID string) { t.Errorf("unexpected expiry for %s", tripID) })
	defer m.Stop()

	if _, err := m.Start("t1", "h1", "d1", time.Second); err != nil {
		t.Fatal(err)
	}
	if err := m.Confirm("t1"); err != nil {
		t.Fatal(err)
	}
	st, _, ok := m.Status("t1")
	if !ok || st != Confirmed {
		t.Fatalf("expected confirmed, got %v ok=%v", st, ok)
	}
	if err := m.Confirm("t1"); !errors.Is(err, ErrDecided) {
		t.Fatalf("expected ErrDecided on re-confirm, got %v", err)
	}
}

func TestExpiryFiresCallbackOnce(t *testing.T) {
	var mu sync.Mutex
	var gotTrip, gotHold, gotDriver string
	calls := 0
	done := make(chan struct{})
	m := NewManager(func(tripID, holdID, driverID string) {
		mu.Lock()
		defer mu.Unlock()
		gotTrip, gotHold, gotDriver = tripID, holdID, driverID
		calls++
		close(done)
	})
	defer m.Stop()

	if _, err := m.Start("t1", "h1", "d1", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotTrip != "t1" || gotHold != "h1" || gotDriver != "d1" || calls != 1 {
		t.Fatalf("unexpected callback: trip=%s hold=%s driver=%s calls=%d", gotTrip, gotHold, gotDriver, calls)
	}
	if err := m.Confirm("t1"); !errors.Is(err, ErrDecided) {
		t.Fatalf("expired countdown must stay terminal, got %v", err)
	}
}

func TestDoubleStartFails(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()
	if _, err := m.Start("t1", "", "", time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start("t1", "", "", time.Second); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestConfirmUnknownTrip(t *testing.T) {
	m := NewManager(nil)
	if err := m.Confirm("nope"); !errors.Is(err, ErrUnknownTrip) {
		t.Fatalf("expected ErrUnknownTrip, got %v", err)
	}
}
