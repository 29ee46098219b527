package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/storage/storagetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledgers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.LedgerStore { return openTempStore(t) })
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgers.db")
	ctx := context.Background()
	key := storage.Key{PlayerID: "p1", PoolID: "standard"}
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Update(ctx, key, func(cur gacha.Ledger, _ bool) (gacha.Ledger, error) {
		return cur.Advance(gacha.Record{RewardID: "lance", Rarity: 4, At: at}, 5, 0), nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// migrations are idempotent on reopen
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, found, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got.TotalDraws)
	assert.Equal(t, "lance", got.Recent[0].RewardID)
	assert.True(t, at.Equal(got.UpdatedAt))
}
