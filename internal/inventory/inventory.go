// Package inventory is an in-memory reward inventory used by the service
// binary and tests.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xtding233/gacha-pull/internal/pull"
)

// ConvertFunc decides what a duplicate copy of rewardID turns into. copies is
// the number held before this grant.
type ConvertFunc func(rewardID string, copies int) []string

// Memory counts copies per player and reward.
type Memory struct {
	convert ConvertFunc

	mu     sync.Mutex
	copies map[string]map[string]int
	grants map[string]grant // by reason
}

type grant struct {
	playerID string
	rewardID string
	result   pull.Grant
	revoked  bool
}

// NewMemory returns an empty inventory. convert may be nil, in which case
// duplicates convert into nothing.
func NewMemory(convert ConvertFunc) *Memory {
	return &Memory{
		convert: convert,
		copies:  make(map[string]map[string]int),
		grants:  make(map[string]grant),
	}
}

// Grant adds one copy. A repeated reason returns the original outcome without
// adding another copy.
func (m *Memory) Grant(_ context.Context, playerID, rewardID, reason string) (pull.Grant, error) {
	if rewardID == "" {
		return pull.Grant{}, fmt.Errorf("reward id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.grants[reason]; ok && !g.revoked {
		return g.result, nil
	}

	held := m.copies[playerID]
	if held == nil {
		held = make(map[string]int)
		m.copies[playerID] = held
	}
	n := held[rewardID]
	out := pull.Grant{FirstCopy: n == 0}
	if n > 0 && m.convert != nil {
		out.Conversion = m.convert(rewardID, n)
	}
	held[rewardID] = n + 1
	m.grants[reason] = grant{playerID: playerID, rewardID: rewardID, result: out}
	return out, nil
}

// Revoke removes the copy added by the grant with the same reason.
func (m *Memory) Revoke(_ context.Context, playerID, rewardID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[reason]
	if !ok {
		return fmt.Errorf("revoke %s: no grant with that reason", reason)
	}
	if g.revoked {
		return nil
	}
	if g.playerID != playerID || g.rewardID != rewardID {
		return fmt.Errorf("revoke %s: grant was %s for %s", reason, g.rewardID, g.playerID)
	}
	m.copies[playerID][rewardID]--
	if m.copies[playerID][rewardID] == 0 {
		delete(m.copies[playerID], rewardID)
	}
	g.revoked = true
	m.grants[reason] = g
	return nil
}

// Copies returns how many copies of rewardID the player holds.
func (m *Memory) Copies(playerID, rewardID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies[playerID][rewardID]
}

// Owned returns a copy of the player's holdings.
func (m *Memory) Owned(playerID string) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.copies[playerID]))
	for id, n := range m.copies[playerID] {
		out[id] = n
	}
	return out
}

// Starglitter converts every duplicate into item.
func Starglitter(item string) ConvertFunc {
	return func(string, int) []string { return []string{item} }
}
