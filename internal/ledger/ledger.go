package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/example/ride-hail-core/internal/models"
	"github.com/example/ride-hail-core/internal/observability"
	"github.com/example/ride-hail-core/internal/storage"
)

// Notifier delivers the penalty notice to the affected user. Best-effort:
// a delivery failure never unwinds a resolved hold.
type Notifier interface {
	PenaltyApplied(userID string, n models.PenaltyNotice) error
}

// SplitPolicy holds the forfeiture split percentages. The 100/50 defaults
// come from product copy, not a verified policy table, so they stay
// replaceable without touching the resolution path.
type SplitPolicy struct {
	DetourCounterpartyPct int // counterparty share when the driver had committed resources
	PlainCounterpartyPct  int // counterparty share on a plain cancellation; rest is platform fee
}

func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{DetourCounterpartyPct: 100, PlainCounterpartyPct: 50}
}

// Service enforces the hold lifecycle: active -> released | forfeited,
// terminal either way. Atomic balance semantics are the store's contract
// (see storage.HoldStore); this service sequences, computes, and reports.
type Service struct {
	Store    storage.HoldStore
	Dispatch Notifier
	Policy   SplitPolicy
	Logger   *slog.Logger
}

// ReleaseOptions parameterizes a resolution. ApplyPenalty=false is a full
// release. PenaltyPercent may be any value in 0..100; Detour routes the
// whole penalty to the counterparty instead of the even platform split.
type ReleaseOptions struct {
	ApplyPenalty   bool
	PenaltyPercent int
	Detour         bool
	CounterpartyID string
	Reason         string
}

// CreateHold reserves amount against the user's available balance. The
// available-balance check and insert happen atomically at the store.
func (s *Service) CreateHold(ctx context.Context, userID string, amount float64, reason, linkedTripID string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("hold amount must be positive, got %v", amount)
	}
	id, err := s.Store.Reserve(ctx, userID, amount, reason, linkedTripID)
	if err != nil {
		return "", err
	}
	observability.HoldsCreated.Inc()
	s.log().Info("hold created", "hold_id", id, "user_id", userID, "amount", amount, "reason", reason)
	return id, nil
}

// ReleaseHold resolves a hold exactly once. With no penalty the full amount
// unlocks. With a penalty, penaltyAmount = round(amount * percent / 100) is
// debited and split per the detour rule; the remainder unlocks. Retrying a
// resolved hold fails with storage.ErrHoldAlreadyResolved — callers must
// not retry blindly.
func (s *Service) ReleaseHold(ctx context.Context, holdID string, opts ReleaseOptions) (*models.PenaltyDistribution, error) {
	hold, err := s.Store.Get(ctx, holdID)
	if err != nil {
		return nil, err
	}
	// fast-fail here; the store re-checks under its own lock
	if hold.Status != models.HoldActive {
		return nil, storage.ErrHoldAlreadyResolved
	}

	penalty := 0.0
	if opts.ApplyPenalty {
		if opts.PenaltyPercent < 0 || opts.PenaltyPercent > 100 {
			return nil, fmt.Errorf("penalty percent out of range: %d", opts.PenaltyPercent)
		}
		penalty = math.Round(hold.Amount * float64(opts.PenaltyPercent) / 100)
	}

	// a penalty that rounds to zero is a plain release: the stores record
	// it as released, so metrics and feed must agree
	if penalty == 0 {
		if err := s.Store.Resolve(ctx, holdID, 0, storage.PenaltySplit{}); err != nil {
			return nil, err
		}
		observability.HoldsReleased.Inc()
		s.log().Info("hold released", "hold_id", holdID, "user_id", hold.UserID, "unlocked", hold.Amount)
		return &models.PenaltyDistribution{HoldID: holdID, UnlockedAmount: hold.Amount}, nil
	}

	dist := s.split(holdID, hold.Amount, penalty, opts.Detour)
	if dist.DriverShare > 0 && opts.CounterpartyID == "" {
		return nil, fmt.Errorf("counterparty required to receive driver share %v of hold %s", dist.DriverShare, holdID)
	}

	err = s.Store.Resolve(ctx, holdID, penalty, storage.PenaltySplit{
		CounterpartyID:    opts.CounterpartyID,
		CounterpartyShare: dist.DriverShare,
		PlatformShare:     dist.PlatformShare,
		Reason:            opts.Reason,
	})
	if err != nil {
		return nil, err
	}
	observability.HoldsForfeited.Inc()
	observability.PenaltyAmount.Add(penalty)
	s.log().Info("hold forfeited",
		"hold_id", holdID, "user_id", hold.UserID, "penalty", penalty,
		"driver_share", dist.DriverShare, "platform_share", dist.PlatformShare,
		"detour", opts.Detour)

	if s.Dispatch != nil {
		notice := models.PenaltyNotice{
			PenaltyAmount:     penalty,
			SplitDescription:  splitDescription(opts.Detour),
			CounterpartyShare: dist.DriverShare,
			PlatformShare:     dist.PlatformShare,
		}
		if err := s.Dispatch.PenaltyApplied(hold.UserID, notice); err != nil {
			s.log().Warn("penalty notice dispatch failed", "hold_id", holdID, "error", err)
		}
	}
	return dist, nil
}

// ActiveHolds lists the user's unresolved holds. Read-only.
func (s *Service) ActiveHolds(ctx context.Context, userID string) ([]models.WalletHold, error) {
	return s.Store.ActiveHolds(ctx, userID)
}

func (s *Service) split(holdID string, amount, penalty float64, detour bool) *models.PenaltyDistribution {
	policy := s.Policy
	if policy.DetourCounterpartyPct == 0 && policy.PlainCounterpartyPct == 0 {
		policy = DefaultSplitPolicy()
	}
	pct := policy.PlainCounterpartyPct
	if detour {
		pct = policy.DetourCounterpartyPct
	}
	driver := math.Round(penalty * float64(pct) / 100)
	return &models.PenaltyDistribution{
		HoldID:         holdID,
		TotalPenalty:   penalty,
		DriverShare:    driver,
		PlatformShare:  penalty - driver,
		UnlockedAmount: amount - penalty,
	}
}

func splitDescription(detour bool) string {
	if detour {
		return "driver already en route: full penalty goes to the driver"
	}
	return "cancellation fee split evenly between driver and platform"
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
