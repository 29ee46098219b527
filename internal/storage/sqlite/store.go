// Package sqlite provides a SQLite-backed pity ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/storage/sqlite/migrations"
)

// Store persists ledgers in a single SQLite file. Write transactions start
// with BEGIN IMMEDIATE so a read-modify-write never races another writer.
type Store struct {
	sqlDB *sql.DB
	locks storage.KeyedMutex
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func migrate(ctx context.Context, sqlDB *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, sqlDB, ".")
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectLedger = `SELECT draws_since_top, draws_since_featured, total_draws, recent, updated_at
	FROM pity_ledgers WHERE player_id = ? AND pool_id = ?`

func scanLedger(ctx context.Context, q querier, key storage.Key) (gacha.Ledger, bool, error) {
	var (
		l       gacha.Ledger
		recent  string
		updated int64
	)
	err := q.QueryRowContext(ctx, selectLedger, key.PlayerID, key.PoolID).
		Scan(&l.DrawsSinceTop, &l.DrawsSinceFeatured, &l.TotalDraws, &recent, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return gacha.Ledger{}, false, nil
	}
	if err != nil {
		return gacha.Ledger{}, false, fmt.Errorf("select ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	if err := json.Unmarshal([]byte(recent), &l.Recent); err != nil {
		return gacha.Ledger{}, false, fmt.Errorf("decode recent for %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	l.UpdatedAt = fromMillis(updated)
	return l, true, nil
}

func (s *Store) Load(ctx context.Context, key storage.Key) (gacha.Ledger, bool, error) {
	if s == nil || s.sqlDB == nil {
		return gacha.Ledger{}, false, storage.ErrClosed
	}
	return scanLedger(ctx, s.sqlDB, key)
}

func (s *Store) Update(ctx context.Context, key storage.Key, fn storage.UpdateFunc) (gacha.Ledger, error) {
	if s == nil || s.sqlDB == nil {
		return gacha.Ledger{}, storage.ErrClosed
	}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return gacha.Ledger{}, err
	}
	defer unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, found, err := scanLedger(ctx, tx, key)
	if err != nil {
		return gacha.Ledger{}, err
	}
	next, err := fn(cur, found)
	if err != nil {
		return gacha.Ledger{}, err
	}

	recent := next.Recent
	if recent == nil {
		recent = []gacha.Record{}
	}
	payload, err := json.Marshal(recent)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("encode recent: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pity_ledgers (player_id, pool_id, draws_since_top, draws_since_featured, total_draws, recent, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (player_id, pool_id) DO UPDATE SET
		   draws_since_top = excluded.draws_since_top,
		   draws_since_featured = excluded.draws_since_featured,
		   total_draws = excluded.total_draws,
		   recent = excluded.recent,
		   updated_at = excluded.updated_at`,
		key.PlayerID, key.PoolID, next.DrawsSinceTop, next.DrawsSinceFeatured, next.TotalDraws,
		string(payload), toMillis(next.UpdatedAt),
	)
	if err != nil {
		return gacha.Ledger{}, fmt.Errorf("upsert ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	if err := tx.Commit(); err != nil {
		return gacha.Ledger{}, fmt.Errorf("commit ledger %s/%s: %w", key.PlayerID, key.PoolID, err)
	}
	return next, nil
}
