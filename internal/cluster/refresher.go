package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-hail-core/internal/feed"
	"github.com/example/ride-hail-core/internal/models"
	"github.com/example/ride-hail-core/internal/observability"
	"github.com/example/ride-hail-core/internal/signals"
)

// Snapshot is one full recompute. The previous snapshot is replaced
// wholesale; clusters carry no identity across recomputes.
type Snapshot struct {
	Clusters     []models.SignalCluster `json:"clusters"`
	HotspotCount int                    `json:"hotspot_count"`
	TotalPeople  int                    `json:"total_people"`
	ComputedAt   time.Time              `json:"computed_at"`
}

// Refresher owns the latest cluster snapshot. It recomputes on a fixed
// cadence and whenever the change feed reports a new signal.
type Refresher struct {
	Signals  signals.Store
	Feed     *feed.Hub
	Interval time.Duration
	Logger   *slog.Logger

	mu     sync.RWMutex
	latest Snapshot
}

// Latest returns the most recent snapshot (zero value before the first
// recompute).
func (r *Refresher) Latest() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Refresh recomputes once from the current store snapshot.
func (r *Refresher) Refresh(ctx context.Context) error {
	sigs, err := r.Signals.Snapshot(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	clusters := At(sigs, now)
	snap := Snapshot{
		Clusters:     clusters,
		HotspotCount: len(clusters),
		TotalPeople:  TotalPeople(clusters),
		ComputedAt:   now,
	}
	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()

	observability.HotspotsActive.Set(float64(snap.HotspotCount))
	observability.PeopleWaiting.Set(float64(snap.TotalPeople))
	return nil
}

// Run refreshes until ctx is done. A feed subscription nudges an immediate
// recompute on signal creation; the ticker covers expiry-driven decay.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	nudge := make(chan struct{}, 1)
	if r.Feed != nil {
		sub := r.Feed.Subscribe(func(c feed.Change) {
			if c.Kind != feed.SignalCreated {
				return
			}
			select {
			case nudge <- struct{}{}:
			default:
			}
		})
		defer sub.Cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged(ctx)
		case <-nudge:
			r.refreshLogged(ctx)
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && r.Logger != nil {
		r.Logger.Warn("cluster refresh failed", "error", err)
	}
}
