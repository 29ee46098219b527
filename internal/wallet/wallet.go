// Package wallet is an in-memory currency wallet used by the service binary
// and tests. It is not a ledger of record.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/xtding233/gacha-pull/internal/pull"
)

// TxKind marks a wallet movement.
type TxKind string

const (
	TxCredit TxKind = "credit"
	TxDebit  TxKind = "debit"
	TxRefund TxKind = "refund"
)

// Tx is one balance movement.
type Tx struct {
	PlayerID string
	Currency string
	Kind     TxKind
	Amount   int64 // signed change applied to the balance
	Reason   string
}

// Memory keeps balances per player and currency. Debit and Refund are
// idempotent per reason.
type Memory struct {
	mu       sync.Mutex
	balances map[string]map[string]int64
	debits   map[string]Tx // by reason
	refunded map[string]bool
	history  []Tx
}

// NewMemory returns an empty wallet.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]map[string]int64),
		debits:   make(map[string]Tx),
		refunded: make(map[string]bool),
	}
}

// Credit adds amount to a balance.
func (m *Memory) Credit(_ context.Context, playerID, currency string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be >= 0, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(playerID, currency, amount)
	m.history = append(m.history, Tx{PlayerID: playerID, Currency: currency, Kind: TxCredit, Amount: amount})
	return nil
}

// Balance returns the current balance.
func (m *Memory) Balance(playerID, currency string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[playerID][currency]
}

func (m *Memory) HasBalance(_ context.Context, playerID, currency string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[playerID][currency] >= amount, nil
}

func (m *Memory) Debit(_ context.Context, playerID, currency string, amount int64, reason string) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be >= 0, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.debits[reason]; done {
		return nil
	}
	if have := m.balances[playerID][currency]; have < amount {
		return fmt.Errorf("%w: have %d %s, need %d", pull.ErrInsufficientFunds, have, currency, amount)
	}
	m.add(playerID, currency, -amount)
	tx := Tx{PlayerID: playerID, Currency: currency, Kind: TxDebit, Amount: -amount, Reason: reason}
	m.debits[reason] = tx
	m.history = append(m.history, tx)
	return nil
}

// Refund returns a debit made with the same reason. Refunding an unknown
// reason is an error; refunding twice is a no-op.
func (m *Memory) Refund(_ context.Context, playerID, currency string, amount int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debits[reason]
	if !ok {
		return fmt.Errorf("refund %s: no debit with that reason", reason)
	}
	if m.refunded[reason] {
		return nil
	}
	if d.PlayerID != playerID || d.Currency != currency || -d.Amount != amount {
		return fmt.Errorf("refund %s: does not match debit of %d %s for %s", reason, -d.Amount, d.Currency, d.PlayerID)
	}
	m.add(playerID, currency, amount)
	m.refunded[reason] = true
	m.history = append(m.history, Tx{PlayerID: playerID, Currency: currency, Kind: TxRefund, Amount: amount, Reason: reason})
	return nil
}

// History returns every movement in order.
func (m *Memory) History() []Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Tx(nil), m.history...)
}

func (m *Memory) add(playerID, currency string, delta int64) {
	b, ok := m.balances[playerID]
	if !ok {
		b = make(map[string]int64)
		m.balances[playerID] = b
	}
	b[currency] += delta
}
