package wallet

import "errors"

// Domain error kinds. Every operation fails with exactly one of these (or an
// underlying storage error wrapped with context); callers dispatch with
// errors.Is.
var (
	// ErrNotFound is returned when an account or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating an account whose email is
	// already registered.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrInvalidAmount is returned for a credit or debit of a non-positive
	// amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInactiveAccount is returned when a balance mutation targets an
	// account whose status is not ACTIVE.
	ErrInactiveAccount = errors.New("account is not active")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateRequest is returned when an idempotency key has already
	// been used by a completed request.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrLockTimeout is returned when exclusive access to an account could
	// not be obtained within the configured wait.
	ErrLockTimeout = errors.New("timed out waiting for account lock")

	// ErrDuplicateReference is returned on a transaction reference
	// collision. References are freshly generated UUIDs, so this indicates
	// either a caller bug or an astronomically unlikely collision; retrying
	// with a new reference is expected to succeed.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrInvalidStatus is returned when a status change names an unknown
	// status.
	ErrInvalidStatus = errors.New("invalid account status")
)
