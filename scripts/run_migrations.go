package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/safar/secondhand-store/internal/config"
	"github.com/safar/secondhand-store/internal/database"
	"github.com/safar/secondhand-store/internal/logging"
)

const migrationDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: go run scripts/run_migrations.go [up|down]")
	}

	direction, err := database.ParseDirection(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

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

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, migrationDir, direction, func(name string) {
		logger.Info("running migration", zap.String("file", name))
	})
	if err != nil {
		logger.Fatal("migration failed", zap.Int("applied", applied), zap.Error(err))
	}

	logger.Info("migrations complete", zap.Int("count", applied), zap.String("direction", string(direction)))
}
