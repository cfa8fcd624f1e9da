package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"interior/internal/entity"
	"interior/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Ledger owns the prepaid credit balance. Every balance change goes through
// Debit or Credit; callers never touch users.credits directly.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns the cached balance or ErrAccountNotFound.
func (l *Ledger) GetBalance(ctx context.Context, userID uint) (int64, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("ledger not initialised")
	}
	if userID == 0 {
		return 0, ErrAccountNotFound
	}
	return l.store.CreditBalance(ctx, userID)
}

// Debit removes amount credits and records a usage transaction tagged with
// relatedEntityID. Returns ErrInsufficientBalance when the balance is short.
func (l *Ledger) Debit(ctx context.Context, userID uint, amount int64, reason, relatedEntityID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := l.apply(ctx, &entity.DbCreditTransaction{
		UserID:          userID,
		Amount:          -amount,
		Type:            entity.CreditTypeUsage,
		Reason:          reason,
		RelatedEntityID: relatedEntityID,
	})
	metrics.LedgerOperations.WithLabelValues("debit", string(entity.CreditTypeUsage), outcome(err)).Inc()
	return balance, err
}

// Credit adds amount credits. It does not deduplicate on relatedEntityID;
// callers that need idempotency check HasTransaction first.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount int64, txType entity.CreditTransactionType, relatedEntityID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !txType.Valid() || txType == entity.CreditTypeUsage {
		return 0, ErrInvalidType
	}
	balance, err := l.apply(ctx, &entity.DbCreditTransaction{
		UserID:          userID,
		Amount:          amount,
		Type:            txType,
		Reason:          string(txType),
		RelatedEntityID: relatedEntityID,
	})
	metrics.LedgerOperations.WithLabelValues("credit", string(txType), outcome(err)).Inc()
	return balance, err
}

// CreditOnce is Credit keyed on (txType, relatedEntityID) at the database:
// a second call with the same pair fails with ErrDuplicateTransaction and
// leaves the balance untouched, even when both calls race.
func (l *Ledger) CreditOnce(ctx context.Context, userID uint, amount int64, txType entity.CreditTransactionType, relatedEntityID string) (int64, error) {
	relatedEntityID = strings.TrimSpace(relatedEntityID)
	if relatedEntityID == "" {
		return 0, fmt.Errorf("credit once: related entity id is required")
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !txType.Valid() || txType == entity.CreditTypeUsage {
		return 0, ErrInvalidType
	}
	key := string(txType) + ":" + relatedEntityID
	balance, err := l.apply(ctx, &entity.DbCreditTransaction{
		UserID:          userID,
		Amount:          amount,
		Type:            txType,
		Reason:          string(txType),
		RelatedEntityID: relatedEntityID,
		IdempotencyKey:  &key,
	})
	metrics.LedgerOperations.WithLabelValues("credit", string(txType), outcome(err)).Inc()
	return balance, err
}

// HasTransaction reports whether a transaction of txType tagged with
// relatedEntityID exists.
func (l *Ledger) HasTransaction(ctx context.Context, txType entity.CreditTransactionType, relatedEntityID string) (bool, error) {
	if l == nil || l.store == nil {
		return false, fmt.Errorf("ledger not initialised")
	}
	relatedEntityID = strings.TrimSpace(relatedEntityID)
	if relatedEntityID == "" {
		return false, nil
	}
	return l.store.HasCreditTransaction(ctx, txType, relatedEntityID)
}

// Drift compares the cached balance against the transaction log.
type Drift struct {
	UserID  uint  `json:"user_id"`
	Balance int64 `json:"balance"`
	Sum     int64 `json:"sum"`
}

func (d Drift) Consistent() bool {
	return d.Balance == d.Sum
}

// Reconcile reads both sides of the balance invariant for one user.
func (l *Ledger) Reconcile(ctx context.Context, userID uint) (Drift, error) {
	balance, err := l.GetBalance(ctx, userID)
	if err != nil {
		return Drift{}, err
	}
	sum, err := l.store.SumCreditTransactions(ctx, userID)
	if err != nil {
		return Drift{}, err
	}
	drift := Drift{UserID: userID, Balance: balance, Sum: sum}
	if !drift.Consistent() {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"balance": balance,
			"sum":     sum,
		}).Error("ledger balance drift detected")
	}
	return drift, nil
}

func (l *Ledger) apply(ctx context.Context, tx *entity.DbCreditTransaction) (int64, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("ledger not initialised")
	}
	if tx.UserID == 0 {
		return 0, ErrAccountNotFound
	}
	balance, err := l.store.ApplyCreditDelta(ctx, tx)
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrAccountNotFound) && !errors.Is(err, ErrDuplicateTransaction) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": tx.UserID,
				"amount":  tx.Amount,
				"type":    tx.Type,
				"related": tx.RelatedEntityID,
			}).Error("ledger apply failed")
		}
		return 0, err
	}
	return balance, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate"
	default:
		return "error"
	}
}
