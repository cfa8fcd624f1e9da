package ledger

import (
	"context"
	"errors"
	"fmt"

	"interior/internal/entity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

// PGStore is a Store that talks to PostgreSQL directly through pgx. It shares
// the users and credit_transactions tables with the gorm repository.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore connects and pings the pool.
func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse ledger database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create ledger connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping ledger database: %w", err)
	}
	return &PGStore{db: pool}, nil
}

func (s *PGStore) Close() {
	s.db.Close()
}

func (s *PGStore) CreditBalance(ctx context.Context, userID uint) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, "SELECT credits FROM users WHERE id = $1", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance query failed: %w", err)
	}
	return balance, nil
}

// ApplyCreditDelta locks the user row, checks the precondition and writes
// balance and transaction in one transaction.
func (s *PGStore) ApplyCreditDelta(ctx context.Context, entry *entity.DbCreditTransaction) (int64, error) {
	if entry == nil || entry.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, "SELECT credits FROM users WHERE id = $1 FOR UPDATE", entry.UserID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if balance+entry.Amount < 0 {
		return 0, ErrInsufficientBalance
	}

	err = tx.QueryRow(ctx,
		"INSERT INTO credit_transactions (created_at, user_id, amount, type, reason, related_entity_id, idempotency_key) VALUES (now(), $1, $2, $3, $4, $5, $6) RETURNING id, created_at",
		entry.UserID, entry.Amount, string(entry.Type), entry.Reason, entry.RelatedEntityID, entry.IdempotencyKey,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateTransaction
		}
		return 0, fmt.Errorf("transaction insert failed: %w", err)
	}

	var newBalance int64
	err = tx.QueryRow(ctx,
		"UPDATE users SET credits = credits + $1, updated_at = now() WHERE id = $2 RETURNING credits",
		entry.Amount, entry.UserID,
	).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}
	return newBalance, nil
}

func (s *PGStore) SumCreditTransactions(ctx context.Context, userID uint) (int64, error) {
	var sum int64
	err := s.db.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1", userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum query failed: %w", err)
	}
	return sum, nil
}

func (s *PGStore) HasCreditTransaction(ctx context.Context, txType entity.CreditTransactionType, relatedEntityID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM credit_transactions WHERE type = $1 AND related_entity_id = $2)",
		string(txType), relatedEntityID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("existence query failed: %w", err)
	}
	return exists, nil
}
