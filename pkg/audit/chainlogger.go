package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one tamper-evident record of a balance movement. Each entry's hash
// covers the previous entry's hash, so rewriting history breaks the chain.
type Entry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger records balance movements as a hash chain.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	entries      []*Entry
}

// NewChainLogger starts a chain anchored at the zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Movement appends a record of one posted transaction.
func (c *ChainLogger) Movement(accountID, txnType, reference string, amount, balanceAfter int64) *Entry {
	payload := fmt.Sprintf("account=%s type=%s reference=%s amount=%d balance_after=%d",
		accountID, txnType, reference, amount, balanceAfter)
	return c.Append(payload)
}

// Append adds a raw payload to the chain.
func (c *ChainLogger) Append(payload string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry.PreviousHash, entry.Timestamp, entry.Payload)

	c.previousHash = entry.Hash
	c.entries = append(c.entries, entry)
	return entry
}

// Entries returns a snapshot of the chain in append order.
func (c *ChainLogger) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func entryHash(previousHash, timestamp, payload string) string {
	sum := sha256.Sum256([]byte(previousHash + "|" + timestamp + "|" + payload))
	return hex.EncodeToString(sum[:])
}

// VerifyChain reports whether entries form an unbroken, unmodified chain.
func VerifyChain(entries []*Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry.PreviousHash, entry.Timestamp, entry.Payload) != entry.Hash {
			return false
		}
	}
	return true
}
