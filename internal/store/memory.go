package store

import (
	"context"
	"sync"

	"github.com/jeenglish/speaking-backend/internal/usage"
)

// Memory is an in-process ledger store for tests and local development. It
// deep-copies on both Load and Save so callers never share map state with
// the store.
type Memory struct {
	mu     sync.Mutex
	ledger usage.Ledger
}

func NewMemory() *Memory {
	return &Memory{ledger: make(usage.Ledger)}
}

func (m *Memory) Load(_ context.Context) (usage.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyLedger(m.ledger), nil
}

func (m *Memory) Save(_ context.Context, l usage.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = copyLedger(l)
	return nil
}

func copyLedger(l usage.Ledger) usage.Ledger {
	out := make(usage.Ledger, len(l))
	for user, months := range l {
		cp := make(map[string]usage.Record, len(months))
		for month, rec := range months {
			cp[month] = rec
		}
		out[user] = cp
	}
	return out
}
