package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xtding233/gacha-pull/internal/config"
	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/inventory"
	"github.com/xtding233/gacha-pull/internal/pool"
	"github.com/xtding233/gacha-pull/internal/pull"
	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/storage/memory"
	"github.com/xtding233/gacha-pull/internal/storage/postgres"
	"github.com/xtding233/gacha-pull/internal/storage/sqlite"
	"github.com/xtding233/gacha-pull/internal/telemetry"
	"github.com/xtding233/gacha-pull/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	loader := pool.NewLoader(cfg.CatalogDir)
	catalog, err := loader.LoadCatalog()
	if err != nil {
		return fmt.Errorf("loading catalog from %s: %w", cfg.CatalogDir, err)
	}
	registry := pool.NewRegistry(catalog)
	logger.Info("catalog loaded", "dir", cfg.CatalogDir, "pools", len(catalog.Pools()))

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing ledger store", "error", err)
		}
	}()

	w := wallet.NewMemory()
	credits, err := cfg.Credits()
	if err != nil {
		return err
	}
	for _, c := range credits {
		if err := w.Credit(ctx, c.PlayerID, c.Currency, c.Amount); err != nil {
			return err
		}
	}
	var convert inventory.ConvertFunc
	if cfg.DuplicateItem != "" {
		convert = inventory.Starglitter(cfg.DuplicateItem)
	}
	inv := inventory.NewMemory(convert)

	svc := pull.NewService(registry, store, w, inv, pull.Options{
		RecentCap: cfg.RecentCap,
		Logger:    logger,
	})
	a := &api{svc: svc, now: func() time.Time { return time.Now().UTC() }, logger: logger}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv := newGRPCServer(svc, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", "addr", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	if cfg.WatchInterval > 0 {
		watcher := pool.NewFileWatcher(cfg.CatalogDir, cfg.WatchInterval, func(changed []string) {
			reloadCatalog(logger, loader, registry, changed)
		})
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		healthSrv.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		grpcSrv.GracefulStop()
		return err
	})

	return g.Wait()
}

// reloadCatalog swaps in a freshly loaded catalog. A catalog that fails to
// load leaves the current one serving.
func reloadCatalog(logger *slog.Logger, loader *pool.Loader, registry *pool.Registry, changed []string) {
	names := make([]string, 0, len(changed))
	for _, p := range changed {
		names = append(names, filepath.Base(p))
	}
	loader.Invalidate()
	next, err := loader.LoadCatalog()
	if err != nil {
		attrs := []any{"changed", names, "error", err}
		if errors.Is(err, gacha.ErrNoRewards) {
			attrs = append(attrs, "alert", true)
		}
		logger.Error("catalog reload rejected; keeping previous catalog", attrs...)
		return
	}
	registry.Swap(next)
	logger.Info("catalog reloaded", "changed", names, "pools", len(next.Pools()))
}

func openStore(ctx context.Context, cfg config.Config) (storage.LedgerStore, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
