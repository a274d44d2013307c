package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hail-core/internal/models"
)

// fakeSink implements SignalSink for tests
type fakeSink struct {
	fail  int // number of times to fail before succeeding
	calls int
}

func (f *fakeSink) Upsert(ctx context.Context, s models.GeoSignal) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("store fail")
	}
	return nil
}

func TestUpsertWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeSink{fail: 2}
	s := models.GeoSignal{ID: "s1", Origin: models.Coord{Lat: 1, Lon: 2}, PeopleCount: 2, ExpiresAt: time.Now().Add(time.Minute)}
	ctx := context.Background()
	start := time.Now()
	if err := upsertWithRetry(ctx, f, s, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpsertWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeSink{fail: 5}
	s := models.GeoSignal{ID: "s1", Origin: models.Coord{Lat: 1, Lon: 2}, PeopleCount: 2, ExpiresAt: time.Now().Add(time.Minute)}
	ctx := context.Background()
	if err := upsertWithRetry(ctx, f, s, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.calls)
	}
}
