// Package postgres provides a PostgreSQL-backed pity ledger store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/storage/postgres/migrations"
)

// Store persists ledgers in PostgreSQL. Update locks the ledger row with
// SELECT ... FOR UPDATE, so updates of one key serialize across processes.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a store. Call Migrate before use on
// a fresh database.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. Close will close it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	connStr := stdlib.RegisterConnConfig(s.pool.Config().ConnConfig)
	defer stdlib.UnregisterConnConfig(connStr)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanLedger(ctx context.Context, q rowQuerier, query string, key storage.Key) (gacha.Ledger, error) {
	var (
		l       gacha.Ledger
		updated *time.Time
	)
	err := q.QueryRow(ctx, query, key.PlayerID, key.PoolID).
		Scan(&l.DrawsSinceTop, &l.DrawsSinceFeatured, &l.TotalDraws, &l.Recent, &updated)
	if err != nil {
		return gacha.Ledger{}, err
	}
	if updated != nil {
		l.UpdatedAt = updated.UTC()
	}
	return l, nil
}

func (s *Store) Load(ctx context.Context, key storage.Key) (gacha.Ledger, bool, error) {
	l, err := scanLedger(ctx, s.pool,
		`SELECT draws_since_top, draws_since_featured, total_draws, recent, updated_at
		 FROM pity_ledgers WHERE player_id = $1 AND pool_id = $2`, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return gacha.Ledger{}, false, nil
	}
	if err != nil {
		return gacha.Ledger{}, false, fmt.Errorf("querying ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	return l, true, nil
}

func (s *Store) Update(ctx context.Context, key storage.Key, fn storage.UpdateFunc) (gacha.Ledger, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("begin transaction for ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "player", key.PlayerID, "pool", key.PoolID, "error", err)
		}
	}()

	// Make sure a row exists so FOR UPDATE has something to lock, even on a
	// player's first draw.
	tag, err := tx.Exec(ctx,
		`INSERT INTO pity_ledgers (player_id, pool_id) VALUES ($1, $2)
		 ON CONFLICT (player_id, pool_id) DO NOTHING`,
		key.PlayerID, key.PoolID)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("seeding ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	found := tag.RowsAffected() == 0

	cur, err := scanLedger(ctx, tx,
		`SELECT draws_since_top, draws_since_featured, total_draws, recent, updated_at
		 FROM pity_ledgers WHERE player_id = $1 AND pool_id = $2 FOR UPDATE`, key)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("locking ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	if !found {
		cur = gacha.Ledger{}
	}

	next, err := fn(cur, found)
	if err != nil {
		return gacha.Ledger{}, err
	}

	recent := next.Recent
	if recent == nil {
		recent = []gacha.Record{}
	}
	var updated *time.Time
	if !next.UpdatedAt.IsZero() {
		u := next.UpdatedAt.UTC()
		updated = &u
	}
	_, err = tx.Exec(ctx,
		`UPDATE pity_ledgers
		 SET draws_since_top = $3, draws_since_featured = $4, total_draws = $5, recent = $6, updated_at = $7
		 WHERE player_id = $1 AND pool_id = $2`,
		key.PlayerID, key.PoolID, next.DrawsSinceTop, next.DrawsSinceFeatured, next.TotalDraws, recent, updated)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("updating ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return gacha.Ledger{}, fmt.Errorf("commit transaction for ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	return next, nil
}
