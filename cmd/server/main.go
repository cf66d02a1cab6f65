package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/verdict/internal/api"
	"github.com/Harshitk-cp/verdict/internal/buildconfig"
	"github.com/Harshitk-cp/verdict/internal/config"
	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/events"
	"github.com/Harshitk-cp/verdict/internal/llm"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/Harshitk-cp/verdict/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	if err := config.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	caseStore, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open case store", zap.String("driver", config.StoreDriver()), zap.Error(err))
	}
	defer closeStore()

	provider := config.OracleProvider()
	oracle, err := llm.NewClient(provider, config.OracleAPIKey())
	if err != nil {
		logger.Fatal("oracle client initialization failed", zap.String("provider", provider), zap.Error(err))
	}
	logger.Info("oracle client initialized", zap.String("provider", provider))

	app := api.NewApp(caseStore, oracle, logger)

	var relay *events.RedisBus
	if url := config.RedisURL(); url != "" {
		client, err := events.OpenRedis(ctx, url)
		if err != nil {
			logger.Warn("redis unavailable, events stay in-process", zap.Error(err))
		} else {
			defer func() { _ = client.Close() }()
			relay = events.NewRedisBus(client, app.Events, logger)
			if err := relay.Start(ctx); err != nil {
				logger.Warn("redis relay failed to start, events stay in-process", zap.Error(err))
				relay = nil
			} else {
				app.Deliberation.SetPublisher(relay)
			}
		}
	}

	// Cancelled on shutdown so open case streams end.
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if relay != nil {
		relay.Stop()
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// openStore opens the configured case store and applies its schema.
func openStore(ctx context.Context, logger *zap.Logger) (domain.CaseStore, func(), error) {
	if config.StoreDriver() == config.StoreDriverSQLite {
		path := config.SQLitePath()
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite case store", zap.String("path", path))
		return s, func() { _ = s.Close() }, nil
	}

	poolCfg, err := pgxpool.ParseConfig(config.DatabaseURL())
	if err != nil {
		return nil, nil, err
	}
	poolCfg.MaxConns = config.DBMaxConns()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	s := store.NewCaseStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("connected to postgres case store", zap.Int32("max_conns", poolCfg.MaxConns))
	return s, pool.Close, nil
}
