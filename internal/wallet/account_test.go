package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountCredit(t *testing.T) {
	account := &Account{Status: StatusActive, Balance: 100}

	require.NoError(t, account.Credit(50))
	assert.Equal(t, int64(150), account.Balance)

	err := account.Credit(0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, int64(150), account.Balance)

	err = account.Credit(-5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, int64(150), account.Balance)
}

func TestAccountDebit(t *testing.T) {
	account := &Account{Status: StatusActive, Balance: 100}

	require.NoError(t, account.Debit(60))
	assert.Equal(t, int64(40), account.Balance)

	err := account.Debit(41)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(40), account.Balance, "balance unchanged on failed debit")

	err = account.Debit(0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = account.Debit(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	require.NoError(t, account.Debit(40))
	assert.Equal(t, int64(0), account.Balance, "debit down to exactly zero is allowed")
}

func TestMutationRequiresActiveStatus(t *testing.T) {
	for _, status := range []Status{StatusInactive, StatusDeactivated} {
		account := &Account{Status: status, Balance: 100}

		assert.ErrorIs(t, account.Credit(10), ErrInactiveAccount)
		assert.ErrorIs(t, account.Debit(10), ErrInactiveAccount)
		assert.Equal(t, int64(100), account.Balance)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusInactive.Valid())
	assert.True(t, StatusDeactivated.Valid())
	assert.False(t, Status("CLOSED").Valid())
	assert.False(t, Status("").Valid())
}

func TestNewReference(t *testing.T) {
	a, b := NewReference(), NewReference()
	assert.Regexp(t, `^TRN-[0-9a-f-]{36}$`, a)
	assert.NotEqual(t, a, b)
}
