// Package storage defines the pity ledger store and the per-key locking its
// implementations share.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/xtding233/gacha-pull/internal/gacha"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("ledger store is closed")

// Key identifies one ledger.
type Key struct {
	PlayerID string
	PoolID   string
}

// UpdateFunc receives the current ledger (zero value and found=false when the
// player has never drawn in the pool) and returns the ledger to persist.
// Returning an error abandons the update and nothing is written.
type UpdateFunc func(cur gacha.Ledger, found bool) (gacha.Ledger, error)

// LedgerStore persists pity ledgers.
//
// Update runs fn while holding exclusive access to key: concurrent updates of
// the same key are serialized, updates of different keys are not. An error
// returned by fn is passed back unwrapped.
type LedgerStore interface {
	Load(ctx context.Context, key Key) (gacha.Ledger, bool, error)
	Update(ctx context.Context, key Key, fn UpdateFunc) (gacha.Ledger, error)
	Close() error
}

// KeyedMutex hands out one lock per Key. Entries are dropped once nobody
// holds or waits on them, so the map only grows with concurrent keys.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// Lock blocks until key is free or ctx is done. On success the returned func
// releases the lock.
func (k *KeyedMutex) Lock(ctx context.Context, key Key) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[Key]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key Key, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
