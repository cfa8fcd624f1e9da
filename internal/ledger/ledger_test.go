package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, startBalance int64) (*ledger.Ledger, uint) {
	t.Helper()
	repo, err := model.OpenSQLiteMemory()
	require.NoError(t, err)

	user := &entity.DbUser{Email: fmt.Sprintf("%s@example.com", t.Name()), PasswordHash: "x", Role: entity.UserRoleUser, IsActive: true}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	l := ledger.New(repo)
	if startBalance > 0 {
		_, err := l.Credit(context.Background(), user.ID, startBalance, entity.CreditTypeBonus, "seed")
		require.NoError(t, err)
	}
	return l, user.ID
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	l, _ := newLedger(t, 0)
	_, err := l.GetBalance(context.Background(), 4242)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = l.GetBalance(context.Background(), 0)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDebitAndCredit(t *testing.T) {
	ctx := context.Background()
	l, userID := newLedger(t, 2)

	balance, err := l.Debit(ctx, userID, 1, "generation", "17")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)

	_, err = l.Debit(ctx, userID, 2, "generation", "18")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	balance, err = l.Credit(ctx, userID, 10, entity.CreditTypePurchase, "cs_test")
	require.NoError(t, err)
	assert.Equal(t, int64(11), balance)

	got, err := l.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)

	found, err := l.HasTransaction(ctx, entity.CreditTypeUsage, "17")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = l.HasTransaction(ctx, entity.CreditTypeUsage, "18")
	require.NoError(t, err)
	assert.False(t, found, "rejected debit must not leave a transaction")
}

func TestInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	l, userID := newLedger(t, 1)

	_, err := l.Debit(ctx, userID, 0, "generation", "1")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.Debit(ctx, userID, -1, "generation", "1")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.Credit(ctx, userID, 0, entity.CreditTypePurchase, "cs")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.Credit(ctx, userID, 1, entity.CreditTypeUsage, "cs")
	assert.ErrorIs(t, err, ledger.ErrInvalidType)
	_, err = l.Credit(ctx, userID, 1, entity.CreditTransactionType("gift"), "cs")
	assert.ErrorIs(t, err, ledger.ErrInvalidType)
}

func TestNoDoubleSpend(t *testing.T) {
	ctx := context.Background()
	const balance, attempts = 4, 12
	l, userID := newLedger(t, balance)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Debit(ctx, userID, 1, "generation", fmt.Sprint(i))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
			rejected++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, balance, succeeded)
	assert.Equal(t, attempts-balance, rejected)

	got, err := l.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestBalanceInvariantUnderMixedLoad(t *testing.T) {
	ctx := context.Background()
	l, userID := newLedger(t, 5)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(i)))
			amount := int64(r.Intn(3) + 1)
			if i%2 == 0 {
				_, _ = l.Credit(ctx, userID, amount, entity.CreditTypePurchase, fmt.Sprintf("cs_%d", i))
				return
			}
			_, _ = l.Debit(ctx, userID, amount, "generation", fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	drift, err := l.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent(), "balance %d != sum %d", drift.Balance, drift.Sum)
	assert.GreaterOrEqual(t, drift.Balance, int64(0))
}

func TestCreditOnce(t *testing.T) {
	ctx := context.Background()
	l, userID := newLedger(t, 0)

	balance, err := l.CreditOnce(ctx, userID, 10, entity.CreditTypePurchase, "cs_once")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	_, err = l.CreditOnce(ctx, userID, 10, entity.CreditTypePurchase, "cs_once")
	require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)

	// 同一个关联 id 的不同类型互不影响
	balance, err = l.CreditOnce(ctx, userID, 1, entity.CreditTypeRefund, "cs_once")
	require.NoError(t, err)
	assert.Equal(t, int64(11), balance)

	_, err = l.CreditOnce(ctx, userID, 1, entity.CreditTypeRefund, " ")
	require.Error(t, err)

	drift, err := l.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
	assert.Equal(t, int64(11), drift.Sum)
}

func TestCreditOnceConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	l, userID := newLedger(t, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied, duplicates := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CreditOnce(ctx, userID, 10, entity.CreditTypePurchase, "cs_race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ledger.ErrDuplicateTransaction):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 7, duplicates)
	balance, err := l.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}
