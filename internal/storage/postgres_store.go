package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-hail-core/internal/models"
)

// PostgresStore implements HoldStore on Postgres. The atomicity contract is
// met with row-locking transactions: Reserve locks the wallet row before the
// availability check, Resolve locks the hold row before the status check.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// withTx runs fn in a transaction, rolling back on error.
func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) Credit(ctx context.Context, userID string, amount float64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO wallets(user_id, balance) VALUES($1,$2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("%w: credit: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) Reserve(ctx context.Context, userID string, amount float64, reason, linkedTripID string) (string, error) {
	id := newID()
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var balance float64
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("%w: wallet lookup: %v", ErrUnavailable, err)
		}
		var held float64
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount),0) FROM wallet_holds WHERE user_id=$1 AND status='active'`, userID).Scan(&held)
		if err != nil {
			return fmt.Errorf("%w: held sum: %v", ErrUnavailable, err)
		}
		if balance-held < amount {
			return ErrInsufficientFunds
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wallet_holds(id, user_id, amount, reason, linked_trip_id, status, created_at)
			 VALUES($1,$2,$3,$4,$5,'active',$6)`,
			id, userID, amount, reason, nullable(linkedTripID), time.Now())
		if err != nil {
			return fmt.Errorf("%w: hold insert: %v", ErrUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *PostgresStore) Get(ctx context.Context, holdID string) (*models.WalletHold, error) {
	var h models.WalletHold
	var trip sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, reason, linked_trip_id, status, created_at
		 FROM wallet_holds WHERE id=$1`, holdID).
		Scan(&h.ID, &h.UserID, &h.Amount, &h.Reason, &trip, &h.Status, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: hold lookup: %v", ErrUnavailable, err)
	}
	h.LinkedTripID = trip.String
	return &h, nil
}

func (p *PostgresStore) Resolve(ctx context.Context, holdID string, penaltyAmount float64, split PenaltySplit) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		var userID string
		var status models.HoldStatus
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, status FROM wallet_holds WHERE id=$1 FOR UPDATE`, holdID).
			Scan(&userID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrHoldNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: hold lock: %v", ErrUnavailable, err)
		}
		if status != models.HoldActive {
			return ErrHoldAlreadyResolved
		}

		next := models.HoldReleased
		if penaltyAmount > 0 {
			next = models.HoldForfeited
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallet_holds SET status=$1 WHERE id=$2`, next, holdID); err != nil {
			return fmt.Errorf("%w: status update: %v", ErrUnavailable, err)
		}
		if penaltyAmount <= 0 {
			return nil
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance = balance - $1 WHERE user_id=$2`, penaltyAmount, userID); err != nil {
			return fmt.Errorf("%w: balance debit: %v", ErrUnavailable, err)
		}
		if err := insertEntry(ctx, tx, holdID, userID, penaltyAmount, "debit", split.Reason, now); err != nil {
			return err
		}
		if split.CounterpartyShare > 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO wallets(user_id, balance) VALUES($1,$2)
				 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
				split.CounterpartyID, split.CounterpartyShare); err != nil {
				return fmt.Errorf("%w: counterparty credit: %v", ErrUnavailable, err)
			}
			if err := insertEntry(ctx, tx, holdID, split.CounterpartyID, split.CounterpartyShare, "credit", split.Reason, now); err != nil {
				return err
			}
		}
		if split.PlatformShare > 0 {
			if err := insertEntry(ctx, tx, holdID, "platform", split.PlatformShare, "fee", split.Reason, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEntry(ctx context.Context, tx *sql.Tx, holdID, userID string, amount float64, direction, reason string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions(id, hold_id, user_id, amount, direction, reason, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		newID(), holdID, userID, amount, direction, reason, at)
	if err != nil {
		return fmt.Errorf("%w: ledger entry: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) ActiveHolds(ctx context.Context, userID string) ([]models.WalletHold, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, linked_trip_id, status, created_at
		 FROM wallet_holds WHERE user_id=$1 AND status='active' ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: active holds: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []models.WalletHold
	for rows.Next() {
		var h models.WalletHold
		var trip sql.NullString
		if err := rows.Scan(&h.ID, &h.UserID, &h.Amount, &h.Reason, &trip, &h.Status, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		h.LinkedTripID = trip.String
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrUnavailable, err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
