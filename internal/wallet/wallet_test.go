package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-pull/internal/pull"
)

func TestDebitAndRefund(t *testing.T) {
	ctx := context.Background()
	w := NewMemory()
	require.NoError(t, w.Credit(ctx, "p1", "jade", 1600))

	ok, err := w.HasBalance(ctx, "p1", "jade", 1600)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, w.Debit(ctx, "p1", "jade", 1600, "b1"))
	assert.Zero(t, w.Balance("p1", "jade"))

	// same reason is not charged twice
	require.NoError(t, w.Debit(ctx, "p1", "jade", 1600, "b1"))
	assert.Zero(t, w.Balance("p1", "jade"))

	require.NoError(t, w.Refund(ctx, "p1", "jade", 1600, "b1"))
	require.NoError(t, w.Refund(ctx, "p1", "jade", 1600, "b1"))
	assert.Equal(t, int64(1600), w.Balance("p1", "jade"))

	kinds := []TxKind{}
	for _, tx := range w.History() {
		kinds = append(kinds, tx.Kind)
	}
	assert.Equal(t, []TxKind{TxCredit, TxDebit, TxRefund}, kinds)
}

func TestDebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	w := NewMemory()
	require.NoError(t, w.Credit(ctx, "p1", "jade", 100))

	err := w.Debit(ctx, "p1", "jade", 160, "b1")
	assert.ErrorIs(t, err, pull.ErrInsufficientFunds)
	assert.Equal(t, int64(100), w.Balance("p1", "jade"))

	ok, err := w.HasBalance(ctx, "p1", "fate", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefundValidation(t *testing.T) {
	ctx := context.Background()
	w := NewMemory()
	assert.Error(t, w.Refund(ctx, "p1", "jade", 10, "unknown"))

	require.NoError(t, w.Credit(ctx, "p1", "jade", 10))
	require.NoError(t, w.Debit(ctx, "p1", "jade", 10, "b1"))
	assert.Error(t, w.Refund(ctx, "p1", "jade", 5, "b1"))
	assert.Error(t, w.Credit(ctx, "p1", "jade", -1))
}
