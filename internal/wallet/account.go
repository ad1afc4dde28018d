package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an account. Only ACTIVE accounts may have
// their balance mutated; every status is reachable from every other.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusDeactivated Status = "DEACTIVATED"
)

// Valid reports whether s names a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeactivated:
		return true
	}
	return false
}

// TransactionType is the direction of a balance mutation.
type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

// Account is a wallet account. Balance is held in minor currency units and is
// never negative; it is mutated only through Credit and Debit executed inside
// a unit of work that holds the account's exclusive lock.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Balance   int64     `json:"balance"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credit increases the balance by amount. It only touches in-memory fields;
// the caller is responsible for serialization and persistence.
func (a *Account) Credit(amount int64) error {
	if a.Status != StatusActive {
		return ErrInactiveAccount
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.Balance += amount
	return nil
}

// Debit decreases the balance by amount, refusing to take it below zero.
func (a *Account) Debit(amount int64) error {
	if a.Status != StatusActive {
		return ErrInactiveAccount
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	return nil
}

// Transaction is one immutable entry in the append-only ledger. BalanceBefore
// and BalanceAfter snapshot the account balance around the mutation, so for
// any transaction BalanceAfter = BalanceBefore ± Amount depending on Type.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Type           TransactionType `json:"type"`
	Amount         int64           `json:"amount"`
	BalanceBefore  int64           `json:"balance_before"`
	BalanceAfter   int64           `json:"balance_after"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IdempotencyRecord marks a client-supplied deduplication key as consumed by
// a completed request. At most one record exists per key.
type IdempotencyRecord struct {
	Key          string    `json:"key"`
	StatusCode   int       `json:"status_code"`
	ResponseBody string    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewReference generates a globally unique public transaction handle.
func NewReference() string {
	return "TRN-" + uuid.NewString()
}
