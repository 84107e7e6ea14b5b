package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"coaching/internal/backend"
	"coaching/internal/catalog"
	"coaching/internal/config"
	"coaching/internal/log"
	"coaching/internal/worker"
)

// Worker drains the notifications queue and reports its depth.
func main() {
	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
		JSON:      cfg.LogJSON,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.QueueBackend == "memory" {
		logger.Error("the worker needs a shared queue; QUEUE_BACKEND=memory is served by the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("open backends failed", log.FieldError, err)
		os.Exit(1)
	}
	defer b.Close()

	cat := catalog.New(b.Catalog, b.Queue, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewDeliverer(cat, b.Hub, logger).Run(gctx, b.Queue)
	})
	g.Go(func() error {
		return worker.ReportDepth(gctx, b.Queue, 15*time.Second, logger)
	})

	logger.Info("worker started", "queue_backend", cfg.QueueBackend)
	if err := g.Wait(); err != nil {
		logger.Error("worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
