package ledger

import (
	"context"

	"interior/internal/entity"
)

// Store persists balances and their transaction history. ApplyCreditDelta
// must change users.credits and insert the transaction row in one atomic
// unit, serialised per user, and must refuse to take the balance below zero.
type Store interface {
	CreditBalance(ctx context.Context, userID uint) (int64, error)
	ApplyCreditDelta(ctx context.Context, tx *entity.DbCreditTransaction) (int64, error)
	SumCreditTransactions(ctx context.Context, userID uint) (int64, error)
	HasCreditTransaction(ctx context.Context, txType entity.CreditTransactionType, relatedEntityID string) (bool, error)
}
