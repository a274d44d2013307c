package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-hail-core/internal/models"
)

var (
	// ErrInsufficientFunds rejects a reserve that would drive the user's
	// available balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrHoldAlreadyResolved rejects a second resolution of the same hold.
	ErrHoldAlreadyResolved = errors.New("hold already resolved")
	// ErrHoldNotFound means the hold id is unknown.
	ErrHoldNotFound = errors.New("hold not found")
	// ErrUnavailable wraps transient persistence failures; callers surface
	// it for a user-visible retry, never retry here.
	ErrUnavailable = errors.New("persistence unavailable")
)

// PenaltySplit describes how a resolved penalty is distributed. Shares must
// sum to the penalty amount; the store records them, it does not police the
// policy.
type PenaltySplit struct {
	CounterpartyID    string
	CounterpartyShare float64
	PlatformShare     float64
	Reason            string
}

// HoldStore is the persistence collaborator for the wallet hold ledger.
//
// Contract (hard requirement on every implementation):
// Reserve MUST perform the available-balance check and the active-hold
// insert as one atomic unit — concurrent reserves for the same user must
// not double-spend the same available balance. Resolve MUST flip status,
// mutate balances, and emit audit entries atomically, and MUST fail with
// ErrHoldAlreadyResolved if the hold is not active. No partial mutation may
// be visible on failure.
type HoldStore interface {
	Reserve(ctx context.Context, userID string, amount float64, reason, linkedTripID string) (string, error)
	Get(ctx context.Context, holdID string) (*models.WalletHold, error)
	Resolve(ctx context.Context, holdID string, penaltyAmount float64, split PenaltySplit) error
	ActiveHolds(ctx context.Context, userID string) ([]models.WalletHold, error)
	Credit(ctx context.Context, userID string, amount float64) error
}

// MemoryStore holds balances and holds under one mutex, which trivially
// satisfies the atomicity contract in-process. Used in tests and when no
// PG_DSN is configured.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]float64
	holds    map[string]*models.WalletHold
	entries  []models.LedgerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]float64),
		holds:    make(map[string]*models.WalletHold),
	}
}

func (m *MemoryStore) Credit(_ context.Context, userID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, userID string, amount float64, reason, linkedTripID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := 0.0
	for _, h := range m.holds {
		if h.UserID == userID && h.Status == models.HoldActive {
			held += h.Amount
		}
	}
	if m.balances[userID]-held < amount {
		return "", ErrInsufficientFunds
	}
	h := &models.WalletHold{
		ID:           newID(),
		UserID:       userID,
		Amount:       amount,
		Reason:       reason,
		LinkedTripID: linkedTripID,
		Status:       models.HoldActive,
		CreatedAt:    time.Now(),
	}
	m.holds[h.ID] = h
	return h.ID, nil
}

func (m *MemoryStore) Get(_ context.Context, holdID string) (*models.WalletHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *MemoryStore) Resolve(_ context.Context, holdID string, penaltyAmount float64, split PenaltySplit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	if h.Status != models.HoldActive {
		return ErrHoldAlreadyResolved
	}
	if penaltyAmount <= 0 {
		h.Status = models.HoldReleased
		return nil
	}
	h.Status = models.HoldForfeited
	m.balances[h.UserID] -= penaltyAmount
	now := time.Now()
	m.entries = append(m.entries, models.LedgerEntry{
		ID: newID(), HoldID: holdID, UserID: h.UserID, Amount: penaltyAmount,
		Direction: "debit", Reason: split.Reason, CreatedAt: now,
	})
	if split.CounterpartyShare > 0 {
		m.balances[split.CounterpartyID] += split.CounterpartyShare
		m.entries = append(m.entries, models.LedgerEntry{
			ID: newID(), HoldID: holdID, UserID: split.CounterpartyID, Amount: split.CounterpartyShare,
			Direction: "credit", Reason: split.Reason, CreatedAt: now,
		})
	}
	if split.PlatformShare > 0 {
		m.entries = append(m.entries, models.LedgerEntry{
			ID: newID(), HoldID: holdID, UserID: "platform", Amount: split.PlatformShare,
			Direction: "fee", Reason: split.Reason, CreatedAt: now,
		})
	}
	return nil
}

func (m *MemoryStore) ActiveHolds(_ context.Context, userID string) ([]models.WalletHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WalletHold
	for _, h := range m.holds {
		if h.UserID == userID && h.Status == models.HoldActive {
			out = append(out, *h)
		}
	}
	return out, nil
}

// AvailableBalance is a test/diagnostic helper: balance minus active holds.
func (m *MemoryStore) AvailableBalance(userID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	avail := m.balances[userID]
	for _, h := range m.holds {
		if h.UserID == userID && h.Status == models.HoldActive {
			avail -= h.Amount
		}
	}
	return avail
}

// Entries returns a copy of the audit trail.
func (m *MemoryStore) Entries() []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
