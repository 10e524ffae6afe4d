package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"github.com/NovaForgeApp/NovaForge/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, startBalance int64) (*Service, *repository.Repositories, uint) {
	t.Helper()

	repos := repository.NewMemoryRepositories()
	account := &models.Account{
		IdentityID: "usr_test",
		Email:      "test@example.com",
	}
	require.NoError(t, repos.Account.Create(account))

	svc := NewServiceFromRepositories(repos)
	if startBalance > 0 {
		_, err := svc.Credit(context.Background(), account.ID, startBalance, models.TransactionKindBonus, "", "")
		require.NoError(t, err)
	}
	return svc, repos, account.ID
}

func TestCreditIncreasesBalance(t *testing.T) {
	svc, _, accountID := newTestService(t, 0)

	account, err := svc.Credit(context.Background(), accountID, 30, models.TransactionKindPurchase, "pi_123", "starter")
	require.NoError(t, err)
	assert.Equal(t, int64(30), account.Balance)
}

func TestCreditRejectsInvalidAmounts(t *testing.T) {
	svc, _, accountID := newTestService(t, 0)

	for _, amount := range []int64{0, -5} {
		_, err := svc.Credit(context.Background(), accountID, amount, models.TransactionKindPurchase, "pi_bad", "starter")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestCreditRejectsDuplicatePaymentRef(t *testing.T) {
	svc, _, accountID := newTestService(t, 0)

	_, err := svc.Credit(context.Background(), accountID, 30, models.TransactionKindPurchase, "pi_dup", "starter")
	require.NoError(t, err)

	_, err = svc.Credit(context.Background(), accountID, 30, models.TransactionKindPurchase, "pi_dup", "starter")
	assert.ErrorIs(t, err, ErrDuplicatePurchase)

	balance, err := svc.Balance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance, "duplicate purchase must not credit twice")
}

func TestCreditUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t, 0)

	_, err := svc.Credit(context.Background(), 9999, 30, models.TransactionKindPurchase, "pi_x", "starter")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDebitReservesCredits(t *testing.T) {
	svc, _, accountID := newTestService(t, 10)

	account, err := svc.Debit(context.Background(), accountID, 2, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), account.Balance)
}

func TestDebitInsufficientBalanceLeavesNoTrace(t *testing.T) {
	svc, repos, accountID := newTestService(t, 1)

	_, err := svc.Debit(context.Background(), accountID, 2, "gen-1")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err := svc.Balance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)

	// A rejected debit must not leave a ledger entry behind.
	count, err := repos.Transaction.CountByAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the initial bonus entry should exist")
}

func TestDebitExactBalanceToZero(t *testing.T) {
	svc, _, accountID := newTestService(t, 2)

	account, err := svc.Debit(context.Background(), accountID, 2, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
}

func TestRefundIsIdempotentPerGeneration(t *testing.T) {
	svc, repos, accountID := newTestService(t, 10)

	_, err := svc.Debit(context.Background(), accountID, 2, "gen-1")
	require.NoError(t, err)

	account, err := svc.Refund(context.Background(), accountID, 2, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)

	// Retried compensation paths must not refund a second time.
	account, err = svc.Refund(context.Background(), accountID, 2, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)

	refund, err := repos.Transaction.FindRefundForGeneration("gen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), refund.Amount)
}

func TestConcurrentRefundsIssueExactlyOne(t *testing.T) {
	// Two sweeper replicas, or a sweeper racing the synchronous
	// compensation path, may invoke Refund for the same generation id at
	// the same time. Only one refund entry may land.
	svc, repos, accountID := newTestService(t, 10)
	ctx := context.Background()

	_, err := svc.Debit(ctx, accountID, 2, "gen-contested")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refund(ctx, accountID, 2, "gen-contested")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "a double refund would overshoot the starting balance")

	refunds := 0
	txns, err := repos.Transaction.ListByAccount(accountID, 0, 100)
	require.NoError(t, err)
	for _, txn := range txns {
		if txn.Kind == models.TransactionKindRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)

	sum, err := repos.Transaction.SumByAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, balance, sum)
}

func TestBalanceMatchesLedgerSum(t *testing.T) {
	svc, repos, accountID := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.Credit(ctx, accountID, 30, models.TransactionKindPurchase, "pi_1", "starter")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, accountID, 2, "gen-1")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, accountID, 1, "gen-2")
	require.NoError(t, err)
	_, err = svc.Refund(ctx, accountID, 1, "gen-2")
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	sum, err := repos.Transaction.SumByAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, sum, balance, "balance must equal signed sum of ledger entries")
	assert.Equal(t, int64(28), balance)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, repos, accountID := newTestService(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Debit(ctx, accountID, 1, fmt.Sprintf("gen-%02d", n))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded, "exactly the available credits may be reserved")

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	sum, err := repos.Transaction.SumByAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}

func TestHistoryPaginates(t *testing.T) {
	svc, _, accountID := newTestService(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Credit(ctx, accountID, 10, models.TransactionKindBonus, "", "")
		require.NoError(t, err)
	}

	page, total, err := svc.History(ctx, accountID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)

	page, total, err = svc.History(ctx, accountID, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 1)
}

func TestBalanceUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t, 0)

	_, err := svc.Balance(context.Background(), 424242)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
