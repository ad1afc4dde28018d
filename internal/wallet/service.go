package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The recorded outcome snapshot for a consumed idempotency key. Only a
// generic success marker is stored; replaying a used key fails with
// ErrDuplicateRequest rather than returning the original response.
const (
	idempotentStatusCode   = 200
	idempotentResponseBody = "SUCCESS"
)

// Service is the wallet engine. It orchestrates the account store, the
// transaction ledger and the idempotency guard, applying the business rules
// under per-account exclusive locking so that concurrent credits and debits
// against the same account are totally ordered and balances never go
// negative.
type Service struct {
	store Store
}

// NewService wires the engine to its storage. All three storage contracts are
// satisfied by the one Store so the unit of work can span them.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// TransactionRequest describes a credit or debit. IdempotencyKey is an
// optional opaque client token; when empty no deduplication is performed.
type TransactionRequest struct {
	Email          string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// CreateAccount registers a new account for email with balance 0 and status
// ACTIVE. Fails with ErrAlreadyExists if the email is taken.
func (s *Service) CreateAccount(ctx context.Context, email string) (*Account, error) {
	account, err := s.store.CreateAccount(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccount is a plain read, unordered against concurrent writes.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.store.GetAccount(ctx, id)
}

// GetAccountByEmail is a plain read keyed by the unique email.
func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.store.GetAccountByEmail(ctx, email)
}

// SetStatus changes the account's lifecycle status. No ledger entry is
// recorded; any status is reachable from any other.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.SetStatus(ctx, id, status)
}

// Credit adds req.Amount to the account's balance and appends the CREDIT
// record to the ledger.
func (s *Service) Credit(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	return s.post(ctx, req, TypeCredit)
}

// Debit removes req.Amount from the account's balance, failing with
// ErrInsufficientFunds sooner than letting the balance go negative.
func (s *Service) Debit(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	return s.post(ctx, req, TypeDebit)
}

// GetTransaction looks up a ledger record by its public reference.
func (s *Service) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	return s.store.GetTransaction(ctx, reference)
}

// ListTransactions returns the account's ledger history, oldest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	return s.store.ListTransactions(ctx, accountID, limit, offset)
}

// post runs one balance mutation as a single unit of work: reserve the
// idempotency key, lock the account, apply the rule, persist, append the
// ledger record. If any step fails the whole unit rolls back, the lock is
// released, and no effect is visible.
func (s *Service) post(ctx context.Context, req TransactionRequest, typ TransactionType) (*Transaction, error) {
	var txn *Transaction

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			if err := tx.ReserveIdempotencyKey(ctx, req.IdempotencyKey, idempotentStatusCode, idempotentResponseBody); err != nil {
				return err
			}
		}

		account, err := tx.LockAccountByEmail(ctx, req.Email)
		if err != nil {
			return err
		}

		balanceBefore := account.Balance
		switch typ {
		case TypeCredit:
			err = account.Credit(req.Amount)
		case TypeDebit:
			err = account.Debit(req.Amount)
		default:
			err = fmt.Errorf("unknown transaction type %q", typ)
		}
		if err != nil {
			return err
		}

		account.UpdatedAt = time.Now().UTC()
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		txn = &Transaction{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Type:           typ,
			Amount:         req.Amount,
			BalanceBefore:  balanceBefore,
			BalanceAfter:   account.Balance,
			Reference:      NewReference(),
			IdempotencyKey: req.IdempotencyKey,
			Description:    req.Description,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}
