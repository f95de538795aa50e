package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"taxlien/internal/config"
	"taxlien/internal/listener"
	"taxlien/internal/logging"
	"taxlien/internal/pipeline"
	"taxlien/internal/scoring"
	"taxlien/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	must(os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))
	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	importer := pipeline.NewImportService(db, cfg, scoring.NewEngine(nil, cfg.ScoringWorkers), logger)
	svc := listener.NewService(db, cfg, importer, logger)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("mail listener started",
		zap.String("provider", cfg.MailListenerProvider),
		zap.String("label", cfg.MailListenerLabel),
		zap.Int("intervalSec", cfg.MailListenerIntervalSec),
	)
	must(svc.Run(ctx))
	logger.Info("mail listener stopped")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
