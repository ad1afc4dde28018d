package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SqliteStore is an embedded single-node Store for development and tests.
// SQLite has no per-row locks, so the store funnels everything through one
// connection: a unit of work holds the whole database, which trivially
// satisfies the per-account serialization guarantee at the cost of
// cross-account parallelism. The busy timeout bounds the wait for that
// database lock.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSqlite(path string, lockTimeout time.Duration) (*SqliteStore, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_txlock=immediate", path, lockTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SqliteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'DEACTIVATED')),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			type TEXT NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
			amount INTEGER NOT NULL CHECK (amount > 0),
			balance_before INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			reference TEXT NOT NULL UNIQUE,
			idempotency_key TEXT,
			description TEXT,
			created_at TIMESTAMP NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_account_created
			ON transactions (account_id, created_at);`,

		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			response_body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// sqliteError translates driver errors into domain error kinds using the
// offending statement's table for disambiguation of unique violations.
func sqliteError(err error, table string) error {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return ErrLockTimeout
	case sqlite3.ErrConstraint:
		switch table {
		case "accounts":
			return ErrAlreadyExists
		case "transactions":
			return ErrDuplicateReference
		case "idempotency_keys":
			return ErrDuplicateRequest
		}
	}
	return err
}

func (s *SqliteStore) CreateAccount(ctx context.Context, email string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:        uuid.New(),
		Email:     email,
		Balance:   0,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, balance, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, account.ID.String(), account.Email, account.Balance, string(account.Status),
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, sqliteError(err, "accounts")
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSqliteAccount(row rowScanner) (*Account, error) {
	var (
		account    Account
		id, status string
	)
	err := row.Scan(&id, &account.Email, &account.Balance, &status,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	account.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("malformed account id %q: %w", id, err)
	}
	account.Status = Status(status)
	return &account, nil
}

const sqliteAccountQuery = `SELECT id, email, balance, status, created_at, updated_at FROM accounts`

func (s *SqliteStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.db.QueryRowContext(ctx, sqliteAccountQuery+` WHERE id = ?`, id.String())
	return scanSqliteAccount(row)
}

func (s *SqliteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, sqliteAccountQuery+` WHERE email = ?`, email)
	return scanSqliteAccount(row)
}

func (s *SqliteStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id.String())
	if err != nil {
		return nil, sqliteError(err, "accounts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAccount(ctx, id)
}

func scanSqliteTransaction(row rowScanner) (*Transaction, error) {
	var (
		txn            Transaction
		id, accountID  string
		typ            string
		idemKey, descr sql.NullString
	)
	err := row.Scan(&id, &accountID, &typ, &txn.Amount, &txn.BalanceBefore, &txn.BalanceAfter,
		&txn.Reference, &idemKey, &descr, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if txn.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed transaction id %q: %w", id, err)
	}
	if txn.AccountID, err = uuid.Parse(accountID); err != nil {
		return nil, fmt.Errorf("malformed account id %q: %w", accountID, err)
	}
	txn.Type = TransactionType(typ)
	txn.IdempotencyKey = idemKey.String
	txn.Description = descr.String
	return &txn, nil
}

const sqliteTransactionQuery = `SELECT id, account_id, type, amount, balance_before,
	balance_after, reference, idempotency_key, description, created_at FROM transactions`

func (s *SqliteStore) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, sqliteTransactionQuery+` WHERE reference = ?`, reference)
	return scanSqliteTransaction(row)
}

func (s *SqliteStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		sqliteTransactionQuery+` WHERE account_id = ? ORDER BY created_at ASC, reference ASC LIMIT ? OFFSET ?`,
		accountID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		txn, err := scanSqliteTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// WithinTx runs fn in one database transaction. With a single connection the
// transaction owns the database outright, so row locking reduces to holding
// the transaction open.
func (s *SqliteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", sqliteError(err, ""))
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", sqliteError(err, ""))
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) ReserveIdempotencyKey(ctx context.Context, key string, statusCode int, responseBody string) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO idempotency_keys (key, status_code, response_body, created_at)
		VALUES (?, ?, ?, ?)
	`, key, statusCode, responseBody, time.Now().UTC())
	if err != nil {
		return sqliteError(err, "idempotency_keys")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateRequest
	}
	return nil
}

func (t *sqliteTx) LockAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := t.tx.QueryRowContext(ctx, sqliteAccountQuery+` WHERE email = ?`, email)
	return scanSqliteAccount(row)
}

func (t *sqliteTx) LockAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := t.tx.QueryRowContext(ctx, sqliteAccountQuery+` WHERE id = ?`, id.String())
	return scanSqliteAccount(row)
}

func (t *sqliteTx) SaveAccount(ctx context.Context, account *Account) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET balance = ?, status = ?, updated_at = ? WHERE id = ?
	`, account.Balance, string(account.Status), account.UpdatedAt, account.ID.String())
	if err != nil {
		return sqliteError(err, "accounts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, txn *Transaction) error {
	var idemKey any
	if txn.IdempotencyKey != "" {
		idemKey = txn.IdempotencyKey
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, balance_before, balance_after,
			reference, idempotency_key, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ID.String(), txn.AccountID.String(), string(txn.Type), txn.Amount, txn.BalanceBefore,
		txn.BalanceAfter, txn.Reference, idemKey, txn.Description, txn.CreatedAt)
	if err != nil {
		return sqliteError(err, "transactions")
	}
	return nil
}

var (
	_ Store = (*SqliteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
