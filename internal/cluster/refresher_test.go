package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-hail-core/internal/models"
	"github.com/example/ride-hail-core/internal/signals"
)

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	idx := signals.NewMemoryIndex()
	r := &Refresher{Signals: idx}
	ctx := context.Background()

	exp := time.Now().Add(time.Minute)
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "a", Origin: models.Coord{Lat: 51.5, Lon: -0.12}, PeopleCount: 2, ExpiresAt: exp})
	_ = idx.Upsert(ctx, models.GeoSignal{ID: "b", Origin: models.Coord{Lat: 48.85, Lon: 2.35}, PeopleCount: 3, ExpiresAt: exp})

	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	snap := r.Latest()
	if snap.HotspotCount != 2 || snap.TotalPeople != 5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.ComputedAt.IsZero() {
		t.Fatal("snapshot should be stamped")
	}

	_ = idx.Upsert(ctx, models.GeoSignal{ID: "c", Origin: models.Coord{Lat: 51.5001, Lon: -0.12}, PeopleCount: 1, ExpiresAt: exp})
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	snap = r.Latest()
	// c merges into a's hotspot, so the count holds while people grow
	if snap.HotspotCount != 2 || snap.TotalPeople != 6 {
		t.Fatalf("unexpected second snapshot: %+v", snap)
	}
}

func TestRefreshStableOverUnchangedSignals(t *testing.T) {
	idx := signals.NewMemoryIndex()
	r := &Refresher{Signals: idx}
	ctx := context.Background()

	// a-b and b-c are within the join radius, a-c is not: grouping depends
	// on which signal seeds first, so a reshuffled snapshot would flip the
	// layout between refreshes
	base := time.Now()
	for i, lat := range []float64{51.5000, 51.5020, 51.5040} {
		id := string(rune('a' + i))
		_ = idx.Upsert(ctx, models.GeoSignal{
			ID:          id,
			Origin:      models.Coord{Lat: lat, Lon: -0.12},
			PeopleCount: 1,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			ExpiresAt:   base.Add(time.Hour),
		})
	}

	for i := 0; i < 100; i++ {
		if err := r.Refresh(ctx); err != nil {
			t.Fatal(err)
		}
		snap := r.Latest()
		if snap.HotspotCount != 2 {
			t.Fatalf("refresh %d: expected 2 hotspots, got %+v", i, snap)
		}
		if snap.Clusters[0].RepresentativeID != "a" || snap.Clusters[1].RepresentativeID != "c" {
			t.Fatalf("refresh %d: layout drifted: %q, %q",
				i, snap.Clusters[0].RepresentativeID, snap.Clusters[1].RepresentativeID)
		}
	}
}

func TestLatestBeforeFirstRefresh(t *testing.T) {
	r := &Refresher{Signals: signals.NewMemoryIndex()}
	snap := r.Latest()
	if snap.HotspotCount != 0 || snap.TotalPeople != 0 || len(snap.Clusters) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}
