package service

import (
	"context"
	"fmt"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/model"
)

// CreditService 读取余额与流水。
type CreditService struct {
	repo   model.Repository
	ledger *ledger.Ledger
}

func NewCreditService(repo model.Repository, l *ledger.Ledger) *CreditService {
	return &CreditService{repo: repo, ledger: l}
}

func (s *CreditService) Summary(ctx context.Context, userID uint, params entity.CreditTransactionQuery) (*entity.CreditSummaryResponse, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	params.UserID = userID
	if params.PageSize <= 0 || params.PageSize > 100 {
		params.PageSize = 20
	}
	txs, meta, err := s.repo.ListCreditTransactions(ctx, &params)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	if txs == nil {
		txs = []entity.DbCreditTransaction{}
	}
	return &entity.CreditSummaryResponse{Balance: balance, Transactions: txs, Meta: meta}, nil
}

// Reconcile 校验所有账户 balance == sum(transactions)，返回不一致的账户。
func (s *CreditService) Reconcile(ctx context.Context) ([]ledger.Drift, int, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var drifts []ledger.Drift
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, 0, err
		}
		drift, err := s.ledger.Reconcile(ctx, id)
		if err != nil {
			return drifts, 0, fmt.Errorf("reconcile user %d: %w", id, err)
		}
		if !drift.Consistent() {
			drifts = append(drifts, drift)
		}
	}
	return drifts, len(ids), nil
}
