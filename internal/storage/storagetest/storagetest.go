// Package storagetest holds behaviour tests every LedgerStore must pass.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/storage"
)

// Run exercises a fresh store from open for every subtest.
func Run(t *testing.T, open func(t *testing.T) storage.LedgerStore) {
	t.Run("LoadMissing", func(t *testing.T) {
		s := open(t)
		l, found, err := s.Load(context.Background(), storage.Key{PlayerID: "nobody", PoolID: "standard"})
		require.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, l.TotalDraws)
	})

	t.Run("UpdateRoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := storage.Key{PlayerID: "p1", PoolID: "standard"}
		at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

		out, err := s.Update(ctx, key, func(cur gacha.Ledger, found bool) (gacha.Ledger, error) {
			assert.False(t, found)
			cur = cur.Advance(gacha.Record{RewardID: "dagger", Rarity: 3, At: at}, 5, 0)
			return cur.Advance(gacha.Record{RewardID: "aurora", Rarity: 5, Featured: true, At: at}, 5, 0), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.TotalDraws)

		got, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 0, got.DrawsSinceTop)
		assert.Equal(t, 0, got.DrawsSinceFeatured)
		assert.Equal(t, 2, got.TotalDraws)
		require.Len(t, got.Recent, 2)
		assert.Equal(t, "dagger", got.Recent[0].RewardID)
		assert.Equal(t, gacha.Rarity(5), got.Recent[1].Rarity)
		assert.True(t, got.Recent[1].Featured)
		assert.True(t, at.Equal(got.Recent[1].At))
		assert.True(t, at.Equal(got.UpdatedAt))

		_, err = s.Update(ctx, key, func(cur gacha.Ledger, found bool) (gacha.Ledger, error) {
			assert.True(t, found)
			assert.Equal(t, 2, cur.TotalDraws)
			return cur.Advance(gacha.Record{RewardID: "sling", Rarity: 3, At: at}, 5, 0), nil
		})
		require.NoError(t, err)
		got, _, err = s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 1, got.DrawsSinceTop)
		assert.Equal(t, 3, got.TotalDraws)
	})

	t.Run("FailedUpdateWritesNothing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := storage.Key{PlayerID: "p1", PoolID: "standard"}
		boom := errors.New("boom")

		_, err := s.Update(ctx, key, func(cur gacha.Ledger, _ bool) (gacha.Ledger, error) {
			return cur.Advance(gacha.Record{RewardID: "dagger", Rarity: 3}, 5, 0), boom
		})
		assert.ErrorIs(t, err, boom)

		_, found, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a := storage.Key{PlayerID: "p1", PoolID: "standard"}
		b := storage.Key{PlayerID: "p1", PoolID: "event"}
		_, err := s.Update(ctx, a, func(cur gacha.Ledger, _ bool) (gacha.Ledger, error) {
			return cur.Advance(gacha.Record{RewardID: "dagger", Rarity: 3}, 5, 0), nil
		})
		require.NoError(t, err)
		_, found, err := s.Load(ctx, b)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		key := storage.Key{PlayerID: "p1", PoolID: "standard"}
		const workers = 8
		const each = 5

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < each; j++ {
					_, err := s.Update(ctx, key, func(cur gacha.Ledger, _ bool) (gacha.Ledger, error) {
						return cur.Advance(gacha.Record{RewardID: "dagger", Rarity: 3}, 5, 100), nil
					})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		got, _, err := s.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, workers*each, got.TotalDraws)
		assert.Equal(t, workers*each, got.DrawsSinceTop)
		assert.Len(t, got.Recent, workers*each)
	})
}
