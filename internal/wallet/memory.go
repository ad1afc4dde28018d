package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTimeout is the bounded wait for exclusive account access.
const DefaultLockTimeout = 3000 * time.Millisecond

// MemoryStore is a process-local Store built on a keyed lock manager. It is
// the reference implementation of the storage contract: unit tests run
// against it, and it doubles as a throwaway development backend. All data is
// lost on process exit.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]*Account
	emails      map[string]uuid.UUID
	txns        map[string]*Transaction
	history     map[uuid.UUID][]string
	idem        map[string]*IdempotencyRecord
	pendingIdem map[string]struct{}

	locks       *keyedLocks
	lockTimeout time.Duration
}

// NewMemoryStore creates an empty store. A non-positive lockTimeout selects
// DefaultLockTimeout.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &MemoryStore{
		accounts:    make(map[uuid.UUID]*Account),
		emails:      make(map[string]uuid.UUID),
		txns:        make(map[string]*Transaction),
		history:     make(map[uuid.UUID][]string),
		idem:        make(map[string]*IdempotencyRecord),
		pendingIdem: make(map[string]struct{}),
		locks:       newKeyedLocks(),
		lockTimeout: lockTimeout,
	}
}

func cloneAccount(a *Account) *Account {
	c := *a
	return &c
}

func cloneTransaction(t *Transaction) *Transaction {
	c := *t
	return &c
}

// CreateAccount checks the email and inserts the new record under one lock
// acquisition, so two concurrent creates cannot both pass the existence
// check.
func (m *MemoryStore) CreateAccount(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emails[email]; ok {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	account := &Account{
		ID:        uuid.New(),
		Email:     email,
		Balance:   0,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.accounts[account.ID] = account
	m.emails[email] = account.ID
	return cloneAccount(account), nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (m *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(m.accounts[id]), nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	account.Status = status
	account.UpdatedAt = time.Now().UTC()
	return cloneAccount(account), nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, reference string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.txns[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(txn), nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := m.history[accountID]
	if offset > len(refs) {
		offset = len(refs)
	}
	refs = refs[offset:]
	if limit > 0 && limit < len(refs) {
		refs = refs[:limit]
	}

	out := make([]*Transaction, 0, len(refs))
	for _, ref := range refs {
		out = append(out, cloneTransaction(m.txns[ref]))
	}
	return out, nil
}

// WithinTx buffers every write and applies the whole batch under the store
// mutex only if fn succeeds. Account locks taken by fn are held across the
// apply and released on the way out, so a competing unit of work always
// observes the committed state.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: m}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return tx.commit()
}

type memTx struct {
	store    *MemoryStore
	reserved []*IdempotencyRecord
	saved    []*Account
	appended []*Transaction
	releases []func()
}

func (t *memTx) releaseLocks() {
	for i := len(t.releases) - 1; i >= 0; i-- {
		t.releases[i]()
	}
	t.releases = nil
}

func (t *memTx) ReserveIdempotencyKey(ctx context.Context, key string, statusCode int, responseBody string) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idem[key]; ok {
		return ErrDuplicateRequest
	}
	// A pending reservation belongs to a concurrent in-flight unit of work;
	// the loser fails instead of waiting for the winner to resolve.
	if _, ok := m.pendingIdem[key]; ok {
		return ErrDuplicateRequest
	}
	m.pendingIdem[key] = struct{}{}
	t.reserved = append(t.reserved, &IdempotencyRecord{
		Key:          key,
		StatusCode:   statusCode,
		ResponseBody: responseBody,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (t *memTx) lockAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	release, err := t.store.locks.acquire(ctx, id.String(), t.store.lockTimeout)
	if err != nil {
		return nil, err
	}
	t.releases = append(t.releases, release)

	// Re-read under the lock: the committed state may have moved while we
	// were waiting.
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	account, ok := t.store.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (t *memTx) LockAccountByEmail(ctx context.Context, email string) (*Account, error) {
	t.store.mu.RLock()
	id, ok := t.store.emails[email]
	t.store.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return t.lockAccount(ctx, id)
}

func (t *memTx) LockAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return t.lockAccount(ctx, id)
}

func (t *memTx) SaveAccount(ctx context.Context, account *Account) error {
	t.saved = append(t.saved, cloneAccount(account))
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, txn *Transaction) error {
	t.appended = append(t.appended, cloneTransaction(txn))
	return nil
}

func (t *memTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, txn := range t.appended {
		if _, ok := m.txns[txn.Reference]; ok {
			t.rollbackLocked()
			return ErrDuplicateReference
		}
	}

	for _, account := range t.saved {
		m.accounts[account.ID] = account
	}
	for _, txn := range t.appended {
		m.txns[txn.Reference] = txn
		m.history[txn.AccountID] = append(m.history[txn.AccountID], txn.Reference)
	}
	for _, rec := range t.reserved {
		delete(m.pendingIdem, rec.Key)
		m.idem[rec.Key] = rec
	}
	return nil
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.rollbackLocked()
}

func (t *memTx) rollbackLocked() {
	for _, rec := range t.reserved {
		delete(t.store.pendingIdem, rec.Key)
	}
	t.reserved = nil
	t.saved = nil
	t.appended = nil
}

// Ledger returns every transaction in the store ordered by creation time.
// Test helper for whole-ledger assertions.
func (m *MemoryStore) Ledger() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Transaction, 0, len(m.txns))
	for _, txn := range m.txns {
		out = append(out, cloneTransaction(txn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
