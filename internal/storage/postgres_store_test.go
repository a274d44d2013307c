package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestReserveInsufficientFundsRollsBack(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM wallets").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(99.99))
	mock.ExpectQuery("SELECT COALESCE").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0.0))
	mock.ExpectRollback()

	_, err := p.Reserve(context.Background(), "u1", 100, "scheduled-trip guarantee", "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveExactBalanceSucceeds(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM wallets").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100.0))
	mock.ExpectQuery("SELECT COALESCE").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0.0))
	mock.ExpectExec("INSERT INTO wallet_holds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := p.Reserve(context.Background(), "u1", 100, "scheduled-trip guarantee", "trip-1")
	if err != nil {
		t.Fatalf("reserve error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a hold id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveCountsActiveHolds(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM wallets").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100.0))
	mock.ExpectQuery("SELECT COALESCE").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(40.0))
	mock.ExpectRollback()

	_, err := p.Reserve(context.Background(), "u1", 70, "guarantee", "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds with 60 available, got %v", err)
	}
}

func TestResolveAlreadyResolved(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, status FROM wallet_holds").WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("u1", "released"))
	mock.ExpectRollback()

	err := p.Resolve(context.Background(), "h1", 0, PenaltySplit{})
	if !errors.Is(err, ErrHoldAlreadyResolved) {
		t.Fatalf("expected ErrHoldAlreadyResolved, got %v", err)
	}
}

func TestResolveUnknownHold(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, status FROM wallet_holds").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}))
	mock.ExpectRollback()

	err := p.Resolve(context.Background(), "nope", 0, PenaltySplit{})
	if !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound, got %v", err)
	}
}

func TestResolveWithPenaltyEmitsAuditRows(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, status FROM wallet_holds").WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("u1", "active"))
	mock.ExpectExec("UPDATE wallet_holds SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets SET balance").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// holder debit entry
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// counterparty credit upsert + entry
	mock.ExpectExec("INSERT INTO wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// platform fee entry
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.Resolve(context.Background(), "h1", 500, PenaltySplit{
		CounterpartyID:    "d1",
		CounterpartyShare: 250,
		PlatformShare:     250,
		Reason:            "late cancellation",
	})
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveReleaseSkipsBalanceMutation(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, status FROM wallet_holds").WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow("u1", "active"))
	mock.ExpectExec("UPDATE wallet_holds SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := p.Resolve(context.Background(), "h1", 0, PenaltySplit{}); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
