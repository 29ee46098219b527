package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/storage/storagetest"
)

// Container tests need Docker; opt in with GACHA_PG_TESTS=1.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("GACHA_PG_TESTS") != "1" {
		t.Skip("set GACHA_PG_TESTS=1 to run PostgreSQL container tests")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "starting postgres container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore(t *testing.T) {
	s := setupStore(t)
	storagetest.Run(t, func(t *testing.T) storage.LedgerStore {
		_, err := s.pool.Exec(context.Background(), `TRUNCATE pity_ledgers`)
		require.NoError(t, err)
		return noClose{s}
	})
}

// noClose shares one container across subtests.
type noClose struct{ *Store }

func (noClose) Close() error { return nil }
