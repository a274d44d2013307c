package signals

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hail-core/internal/models"
)

// stubbed in tests
var timeNow = time.Now

// Store is the snapshot source the clusterer's caller reads from. Snapshot
// returns only non-expired signals, oldest first; grouping downstream is
// anchored on input order, so the order must be stable across reads of
// unchanged data.
type Store interface {
	Upsert(ctx context.Context, s models.GeoSignal) error
	Snapshot(ctx context.Context) ([]models.GeoSignal, error)
}

// orderSnapshot fixes the snapshot order: CreatedAt ascending, ID as the
// tiebreak. Backing stores iterate maps, which would reshuffle otherwise.
func orderSnapshot(out []models.GeoSignal) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

// MemoryIndex is the zero-infrastructure Store used in tests and when no
// Redis address is configured.
type MemoryIndex struct {
	mu      sync.RWMutex
	signals map[string]models.GeoSignal
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{signals: make(map[string]models.GeoSignal)}
}

func (m *MemoryIndex) Upsert(_ context.Context, s models.GeoSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[s.ID] = s
	return nil
}

func (m *MemoryIndex) Snapshot(_ context.Context) ([]models.GeoSignal, error) {
	now := timeNow()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GeoSignal, 0, len(m.signals))
	for id, s := range m.signals {
		if s.Expired(now) {
			delete(m.signals, id)
			continue
		}
		out = append(out, s)
	}
	orderSnapshot(out)
	return out, nil
}
