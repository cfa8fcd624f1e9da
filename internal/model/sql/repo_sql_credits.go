package sql

import (
	"context"
	"errors"
	"strings"

	"interior/internal/entity"
	"interior/internal/ledger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditBalance returns the cached balance of a user.
func (r *GormRepository) CreditBalance(ctx context.Context, userID uint) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var user entity.DbUser
	err := r.db.WithContext(ctx).Select("id", "credits").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// ApplyCreditDelta changes the balance and appends the transaction row in a
// single database transaction. The user row is locked where the dialect
// supports it and the update itself re-checks the non-negative precondition.
func (r *GormRepository) ApplyCreditDelta(ctx context.Context, entry *entity.DbCreditTransaction) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if entry == nil || entry.Amount == 0 {
		return 0, ledger.ErrInvalidAmount
	}

	var newBalance int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&entity.DbUser{}).Select("id", "credits")
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var user entity.DbUser
		if err := query.First(&user, entry.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrAccountNotFound
			}
			return err
		}
		if user.Credits+entry.Amount < 0 {
			return ledger.ErrInsufficientBalance
		}

		result := tx.Model(&entity.DbUser{}).
			Where("id = ? AND credits + ? >= 0", entry.UserID, entry.Amount).
			Update("credits", gorm.Expr("credits + ?", entry.Amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledger.ErrInsufficientBalance
		}

		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ledger.ErrDuplicateTransaction
			}
			return err
		}

		return tx.Model(&entity.DbUser{}).Where("id = ?", entry.UserID).Select("credits").Row().Scan(&newBalance)
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// SumCreditTransactions returns the signed sum of a user's transactions.
func (r *GormRepository) SumCreditTransactions(ctx context.Context, userID uint) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// HasCreditTransaction reports whether a transaction with the given type and
// related entity exists.
func (r *GormRepository) HasCreditTransaction(ctx context.Context, txType entity.CreditTransactionType, relatedEntityID string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.DbCreditTransaction{}).
		Where("type = ? AND related_entity_id = ?", string(txType), relatedEntityID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListCreditTransactions returns a user's transactions, newest first.
func (r *GormRepository) ListCreditTransactions(ctx context.Context, params *entity.CreditTransactionQuery) ([]entity.DbCreditTransaction, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &entity.CreditTransactionQuery{}
	}

	query := r.db.WithContext(ctx).Model(&entity.DbCreditTransaction{})
	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if trimmed := strings.TrimSpace(params.Type); trimmed != "" {
		query = query.Where("type = ?", trimmed)
	}
	return paginate[entity.DbCreditTransaction](query, params.BaseParams)
}
