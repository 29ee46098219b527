// Package memory is an in-process LedgerStore for tests and single-node runs.
package memory

import (
	"context"
	"sync"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/storage"
)

// Store keeps ledgers in a map. Ledgers are copied in and out so callers
// never share Recent slices with the store.
type Store struct {
	locks storage.KeyedMutex

	mu      sync.RWMutex
	ledgers map[storage.Key]gacha.Ledger
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{ledgers: make(map[storage.Key]gacha.Ledger)}
}

func (s *Store) Load(ctx context.Context, key storage.Key) (gacha.Ledger, bool, error) {
	if err := ctx.Err(); err != nil {
		return gacha.Ledger{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return gacha.Ledger{}, false, storage.ErrClosed
	}
	l, ok := s.ledgers[key]
	return l.Clone(), ok, nil
}

func (s *Store) Update(ctx context.Context, key storage.Key, fn storage.UpdateFunc) (gacha.Ledger, error) {
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return gacha.Ledger{}, err
	}
	defer unlock()

	cur, found, err := s.Load(ctx, key)
	if err != nil {
		return gacha.Ledger{}, err
	}
	next, err := fn(cur, found)
	if err != nil {
		return gacha.Ledger{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gacha.Ledger{}, storage.ErrClosed
	}
	s.ledgers[key] = next.Clone()
	return next, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
