package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Store. The unit of work maps onto one
// database transaction; exclusive account access is a SELECT ... FOR UPDATE
// row lock bounded by lock_timeout, and key uniqueness (email, reference,
// idempotency key) is enforced by constraints so check-and-insert is a single
// atomic step.
type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore wraps an existing pool. A non-positive lockTimeout selects
// DefaultLockTimeout.
func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout}
}

// Migrate applies the schema. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'DEACTIVATED')),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT accounts_email_key UNIQUE (email)
		);`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE RESTRICT,
			type TEXT NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			balance_before BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reference TEXT NOT NULL,
			idempotency_key TEXT,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT transactions_reference_key UNIQUE (reference)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_account_created
			ON transactions (account_id, created_at);`,

		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INT NOT NULL,
			response_body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// pgError translates driver error codes into domain error kinds.
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "55P03": // lock_not_available
		return ErrLockTimeout
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "accounts_email_key":
			return ErrAlreadyExists
		case "transactions_reference_key":
			return ErrDuplicateReference
		case "idempotency_keys_pkey":
			return ErrDuplicateRequest
		}
	}
	return err
}

const accountColumns = `id, email, balance, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var account Account
	err := row.Scan(&account.ID, &account.Email, &account.Balance, &account.Status,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgError(err)
	}
	return &account, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, email string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:        uuid.New(),
		Email:     email,
		Balance:   0,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.Email, account.Balance, account.Status, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, pgError(err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns, id, status, time.Now().UTC())
	return scanAccount(row)
}

const transactionColumns = `id, account_id, type, amount, balance_before, balance_after,
	reference, COALESCE(idempotency_key, ''), COALESCE(description, ''), created_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var txn Transaction
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.Type, &txn.Amount, &txn.BalanceBefore,
		&txn.BalanceAfter, &txn.Reference, &txn.IdempotencyKey, &txn.Description, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgError(err)
	}
	return &txn, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE reference = $1
	`, reference)
	return scanTransaction(row)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at ASC, reference ASC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}
	return out, nil
}

// WithinTx runs fn in one database transaction with lock_timeout bounding
// every row-lock wait inside it.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", pgError(err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// ReserveIdempotencyKey inserts the key with ON CONFLICT DO NOTHING. A
// concurrent holder of the same key blocks this insert until its unit of work
// resolves; a committed holder makes it a no-op, which is reported as
// ErrDuplicateRequest.
func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, key string, statusCode int, responseBody string) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (key, status_code, response_body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`, key, statusCode, responseBody, time.Now().UTC())
	if err != nil {
		return pgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequest
	}
	return nil
}

func (t *pgTx) LockAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE
	`, email)
	return scanAccount(row)
}

func (t *pgTx) LockAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE
	`, id)
	return scanAccount(row)
}

func (t *pgTx) SaveAccount(ctx context.Context, account *Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET balance = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, account.ID, account.Balance, account.Status, account.UpdatedAt)
	if err != nil {
		return pgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn *Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, balance_before, balance_after,
			reference, idempotency_key, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`, txn.ID, txn.AccountID, txn.Type, txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		txn.Reference, txn.IdempotencyKey, txn.Description, txn.CreatedAt)
	if err != nil {
		return pgError(err)
	}
	return nil
}
