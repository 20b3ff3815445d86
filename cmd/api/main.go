package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/safar/secondhand-store/internal/config"
	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/logging"
	"github.com/safar/secondhand-store/internal/observability"
	"github.com/safar/secondhand-store/internal/report"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns))

	metrics := observability.NewMetrics()

	a := &api{
		db:      db,
		reports: report.NewReporter(db),
		metrics: metrics,
		logger:  logger,
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, reports will fall back to postgres",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}

		cache := report.NewCache(a.reports, client, cfg.Redis.ReportTTL, logger.Named("report_cache"),
			report.WithRecorder(metrics))
		a.reports = cache
		a.invalidator = cache
		logger.Info("report cache enabled",
			zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.ReportTTL))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(a, cfg.Server.RateLimit),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
