package signals

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-hail-core/internal/models"
)

func TestMemoryIndexSnapshotDropsExpired(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	now := time.Now()

	live := models.GeoSignal{ID: "live", Origin: models.Coord{Lat: 1, Lon: 2}, PeopleCount: 2, ExpiresAt: now.Add(time.Minute)}
	dead := models.GeoSignal{ID: "dead", Origin: models.Coord{Lat: 1, Lon: 2}, PeopleCount: 5, ExpiresAt: now.Add(-time.Second)}
	if err := idx.Upsert(ctx, live); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, dead); err != nil {
		t.Fatal(err)
	}

	got, err := idx.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Fatalf("expected only the live signal, got %+v", got)
	}

	// expired entry was pruned, not just filtered
	got, _ = idx.Snapshot(ctx)
	if len(got) != 1 {
		t.Fatalf("expected pruned snapshot to stay at 1, got %d", len(got))
	}
}

func TestMemoryIndexSnapshotOrderedOldestFirst(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	now := time.Now()
	exp := now.Add(time.Hour)

	// inserted out of order on purpose; the snapshot must not depend on
	// map iteration
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "late", PeopleCount: 1, CreatedAt: now.Add(2 * time.Second), ExpiresAt: exp})
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "early", PeopleCount: 1, CreatedAt: now, ExpiresAt: exp})
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "mid", PeopleCount: 1, CreatedAt: now.Add(time.Second), ExpiresAt: exp})

	for i := 0; i < 20; i++ {
		got, err := idx.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[0].ID != "early" || got[1].ID != "mid" || got[2].ID != "late" {
			t.Fatalf("iteration %d: unstable snapshot order: %+v", i, got)
		}
	}
}

func TestOrderSnapshotTiebreaksOnID(t *testing.T) {
	now := time.Now()
	out := []models.GeoSignal{{ID: "b", CreatedAt: now}, {ID: "a", CreatedAt: now}}
	orderSnapshot(out)
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected id tiebreak, got %+v", out)
	}
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "s1", PeopleCount: 1, ExpiresAt: exp})
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "s1", PeopleCount: 3, ExpiresAt: exp})
	got, _ := idx.Snapshot(ctx)
	if len(got) != 1 || got[0].PeopleCount != 3 {
		t.Fatalf("expected single replaced signal, got %+v", got)
	}
}
