package wallet

import (
	"context"

	"github.com/google/uuid"
)

// AccountStore is durable keyed storage of account records.
type AccountStore interface {
	// CreateAccount registers a new account with balance 0 and status
	// ACTIVE. The existence check and the insert are one atomic step; a
	// second create with the same email fails with ErrAlreadyExists.
	CreateAccount(ctx context.Context, email string) (*Account, error)

	// GetAccount returns the account by id, or ErrNotFound.
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetAccountByEmail returns the account by its unique email, or
	// ErrNotFound.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// SetStatus updates the status field and returns the updated account.
	// Status changes do not serialize against balance mutations.
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error)
}

// TransactionLedger is the read surface of the append-only transaction store.
// Appends happen only inside a unit of work, via Tx.
type TransactionLedger interface {
	// GetTransaction returns the transaction with the given reference, or
	// ErrNotFound.
	GetTransaction(ctx context.Context, reference string) (*Transaction, error)

	// ListTransactions returns the account's transactions, oldest first.
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

// Tx is the set of writes available inside one unit of work. Everything done
// through a Tx either commits together or leaves no trace.
type Tx interface {
	// ReserveIdempotencyKey atomically records key as consumed, together
	// with the outcome snapshot that will be associated with it. It fails
	// with ErrDuplicateRequest if the key is already taken. The
	// reservation only survives if the unit of work commits, so a failed
	// operation does not burn its key. Reserving before the balance
	// mutation closes the check-then-act window: two concurrent requests
	// bearing the same key can never both mutate the balance.
	ReserveIdempotencyKey(ctx context.Context, key string, statusCode int, responseBody string) error

	// LockAccountByEmail acquires the account's exclusive lock and returns
	// its current committed state. The lock is held until the unit of work
	// ends. Fails with ErrNotFound if absent, ErrLockTimeout if the lock
	// cannot be obtained within the store's bounded wait.
	LockAccountByEmail(ctx context.Context, email string) (*Account, error)

	// LockAccountByID is LockAccountByEmail keyed by id.
	LockAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// SaveAccount persists the field values of an account previously
	// returned by a locked lookup in this same unit of work.
	SaveAccount(ctx context.Context, account *Account) error

	// AppendTransaction inserts an immutable ledger record. Fails with
	// ErrDuplicateReference on a reference collision.
	AppendTransaction(ctx context.Context, txn *Transaction) error
}

// UnitOfWork runs fn atomically: if fn returns nil every write made through
// the Tx is committed, otherwise all of them are rolled back. Locks acquired
// by fn are released either way.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store is the full storage contract consumed by the engine. A single
// implementation backs all three component contracts so that the unit of work
// can span them.
type Store interface {
	AccountStore
	TransactionLedger
	UnitOfWork
}
