package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/atmx/tactician/internal/api"
	"github.com/atmx/tactician/internal/config"
	"github.com/atmx/tactician/internal/ledger"
	"github.com/atmx/tactician/internal/prediction"
	"github.com/atmx/tactician/internal/prefs"
	"github.com/atmx/tactician/internal/quote"
	"github.com/atmx/tactician/internal/schedule"
	"github.com/atmx/tactician/internal/store"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API with quote refresh and game settlement",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := config.NewLogger(cfg.Logging.Level, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	kv, cleanup, err := openKV(ctx, cfg.Storage)
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()
	if err != nil {
		return err
	}

	// --- Engines ---
	led, err := ledger.Open(ctx, store.NewPositionRepository(kv))
	if err != nil {
		return err
	}
	games, err := prediction.Open(ctx, store.NewGameRepository(kv))
	if err != nil {
		return err
	}

	source := quote.NewCoinGecko(cfg.Quotes.BaseURL, &http.Client{Timeout: cfg.Quotes.Timeout})
	quotes := quote.NewCache(source, cfg.Quotes.CacheTTL)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	svc := api.NewService(api.Deps{
		Ledger: led,
		Games:  games,
		Quotes: quotes,
		Prefs:  prefs.New(kv),
		Hub:    wsHub,
	})

	// --- Scheduler ---
	sched := schedule.New(schedule.RealClock{})
	if err := svc.RegisterJobs(sched, cfg.Quotes.RefreshInterval, cfg.Prediction.SettleInterval); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(svc, wsHub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tactician listening", "addr", srv.Addr, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down tactician...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	return nil
}

// openKV builds the configured backend. Cleanup funcs are returned even on
// error so partially opened resources are released.
func openKV(ctx context.Context, cfg config.Storage) (store.KV, []func(), error) {
	var cleanup []func()

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresKV(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, cleanup, err
		}
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL == "" {
			return pg, cleanup, nil
		}
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		return store.NewCachedKV(pg, rdb, cfg.CacheTTL), cleanup, nil

	case config.BackendSQLite:
		db, err := store.NewSQLiteKV(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = append(cleanup, func() { db.Close() })
		slog.Info("using SQLite store", "path", cfg.SQLitePath)
		return db, cleanup, nil

	case config.BackendFile:
		f, err := store.NewFileKV(cfg.FilePath)
		if err != nil {
			return nil, cleanup, err
		}
		slog.Info("using file store", "path", cfg.FilePath)
		return f, cleanup, nil

	default:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryKV(), cleanup, nil
	}
}
