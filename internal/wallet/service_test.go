package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(0)
	return NewService(store), store
}

func TestCreateAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, int64(0), account.Balance)
	assert.Equal(t, StatusActive, account.Status)
	assert.NotEqual(t, uuid.Nil, account.ID)

	_, err = svc.CreateAccount(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "bob@example.com")
	require.NoError(t, err)

	byID, err := svc.GetAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	byEmail, err := svc.GetAccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = svc.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreditDebitFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "alice@example.com")
	require.NoError(t, err)

	txn, err := svc.Credit(ctx, TransactionRequest{
		Email:          "alice@example.com",
		Amount:         5000,
		Description:    "initial top-up",
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeCredit, txn.Type)
	assert.Equal(t, int64(0), txn.BalanceBefore)
	assert.Equal(t, int64(5000), txn.BalanceAfter)
	assert.Regexp(t, `^TRN-`, txn.Reference)

	txn, err = svc.Debit(ctx, TransactionRequest{
		Email:          "alice@example.com",
		Amount:         2000,
		IdempotencyKey: "k2",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeDebit, txn.Type)
	assert.Equal(t, int64(5000), txn.BalanceBefore)
	assert.Equal(t, int64(3000), txn.BalanceAfter)

	account, err := svc.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), account.Balance)
}

func TestDebitInsufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "carol@example.com")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, TransactionRequest{Email: "carol@example.com", Amount: 100})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, TransactionRequest{
		Email:          "carol@example.com",
		Amount:         500,
		IdempotencyKey: "k3",
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	account, err := svc.GetAccountByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "failed debit leaves balance untouched")

	txns, err := svc.ListTransactions(ctx, account.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, txns, 1, "failed debit appends nothing to the ledger")
}

func TestIdempotencyKeyReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "dave@example.com")
	require.NoError(t, err)

	req := TransactionRequest{Email: "dave@example.com", Amount: 100, IdempotencyKey: "k4"}

	_, err = svc.Credit(ctx, req)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	account, err := svc.GetAccountByEmail(ctx, "dave@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "replay must not apply twice")
}

func TestFailedOperationDoesNotConsumeKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "erin@example.com")
	require.NoError(t, err)

	// Debit on an empty balance fails and rolls back, so the key stays free.
	req := TransactionRequest{Email: "erin@example.com", Amount: 100, IdempotencyKey: "k5"}
	_, err = svc.Debit(ctx, req)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = svc.Credit(ctx, req)
	assert.NoError(t, err, "key from a rolled-back unit of work is reusable")
}

func TestIdempotencyIsOptIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "frank@example.com")
	require.NoError(t, err)

	req := TransactionRequest{Email: "frank@example.com", Amount: 100}
	_, err = svc.Credit(ctx, req)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, req)
	require.NoError(t, err, "no key, no deduplication")

	account, err := svc.GetAccountByEmail(ctx, "frank@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(200), account.Balance)
}

func TestSetStatusGatesMutations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "grace@example.com")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, TransactionRequest{Email: "grace@example.com", Amount: 100})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, account.ID, StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, updated.Status)

	_, err = svc.Credit(ctx, TransactionRequest{Email: "grace@example.com", Amount: 10, IdempotencyKey: "k6"})
	assert.ErrorIs(t, err, ErrInactiveAccount)
	_, err = svc.Debit(ctx, TransactionRequest{Email: "grace@example.com", Amount: 10})
	assert.ErrorIs(t, err, ErrInactiveAccount)

	got, err := svc.GetAccountByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	// Every status is reachable from every other.
	updated, err = svc.SetStatus(ctx, account.ID, StatusDeactivated)
	require.NoError(t, err)
	assert.Equal(t, StatusDeactivated, updated.Status)
	updated, err = svc.SetStatus(ctx, account.ID, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)

	_, err = svc.SetStatus(ctx, account.ID, Status("FROZEN"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.SetStatus(ctx, uuid.New(), StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "heidi@example.com")
	require.NoError(t, err)

	txn, err := svc.Credit(ctx, TransactionRequest{Email: "heidi@example.com", Amount: 42, Description: "prize"})
	require.NoError(t, err)

	got, err := svc.GetTransaction(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, "prize", got.Description)
	assert.Equal(t, account.ID, got.AccountID)

	_, err = svc.GetTransaction(ctx, "TRN-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTransactionsPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "ivan@example.com")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = svc.Credit(ctx, TransactionRequest{Email: "ivan@example.com", Amount: 10})
		require.NoError(t, err)
	}

	all, err := svc.ListTransactions(ctx, account.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	page, err := svc.ListTransactions(ctx, account.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].Reference, page[0].Reference)
	assert.Equal(t, all[2].Reference, page[1].Reference)
}

func TestConcurrentCreditsConverge(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "alice@example.com")
	require.NoError(t, err)

	const (
		n      = 32
		amount = 25
	)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, TransactionRequest{
				Email:          "alice@example.com",
				Amount:         amount,
				IdempotencyKey: uuid.NewString(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(n*amount), got.Balance)

	// The ledger must chain: sorted by balanceBefore, each entry starts
	// where the previous one ended.
	txns, err := svc.ListTransactions(ctx, account.ID, n, 0)
	require.NoError(t, err)
	require.Len(t, txns, n)

	seen := make(map[int64]int64, n) // balanceBefore -> balanceAfter
	for _, txn := range txns {
		assert.Equal(t, txn.BalanceBefore+amount, txn.BalanceAfter)
		seen[txn.BalanceBefore] = txn.BalanceAfter
	}
	balance := int64(0)
	for i := 0; i < n; i++ {
		after, ok := seen[balance]
		require.True(t, ok, "no transaction starts at balance %d", balance)
		balance = after
	}
	assert.Equal(t, int64(n*amount), balance)
	assert.Len(t, store.Ledger(), n)
}

func TestConcurrentSameKeyAppliesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, "bob@example.com")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, TransactionRequest{
				Email:          "bob@example.com",
				Amount:         100,
				IdempotencyKey: "shared-key",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateRequest):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one request with a shared key wins")
	assert.Equal(t, n-1, dup)

	account, err := svc.GetAccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)
}

func TestLockTimeout(t *testing.T) {
	store := NewMemoryStore(50 * time.Millisecond)
	svc := NewService(store)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "slow@example.com")
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithinTx(ctx, func(tx Tx) error {
			if _, err := tx.LockAccountByID(ctx, account.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	_, err = svc.Credit(ctx, TransactionRequest{Email: "slow@example.com", Amount: 10})
	assert.ErrorIs(t, err, ErrLockTimeout)
	close(release)
}
