package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 50, cfg.RecentCap)
	assert.Equal(t, 2*time.Second, cfg.WatchInterval)
	assert.Empty(t, cfg.OTelEndpoint)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GACHA_STORE", "sqlite")
	t.Setenv("GACHA_SQLITE_PATH", "/tmp/ledgers.db")
	t.Setenv("GACHA_RECENT_CAP", "20")
	t.Setenv("GACHA_DEV_CREDITS", "p1:jade:1600, p2:fate:10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 20, cfg.RecentCap)

	credits, err := cfg.Credits()
	require.NoError(t, err)
	assert.Equal(t, []Credit{
		{PlayerID: "p1", Currency: "jade", Amount: 1600},
		{PlayerID: "p2", Currency: "fate", Amount: 10},
	}, credits)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	t.Setenv("GACHA_STORE", "postgres")
	t.Setenv("GACHA_RECENT_CAP", "0")
	t.Setenv("GACHA_DEV_CREDITS", "p1:jade")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GACHA_POSTGRES_DSN is required")
	assert.Contains(t, err.Error(), "GACHA_RECENT_CAP must be > 0")
	assert.Contains(t, err.Error(), "player:currency:amount")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
