package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"coaching/internal/api"
	"coaching/internal/attendance"
	"coaching/internal/auth"
	"coaching/internal/backend"
	"coaching/internal/catalog"
	"coaching/internal/cloudinary"
	"coaching/internal/config"
	"coaching/internal/directory"
	"coaching/internal/ledger"
	"coaching/internal/log"
	"coaching/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
		JSON:      cfg.LogJSON,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("http server failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	led := ledger.NewService(b.Ledger, b.Hub, logger)
	att := attendance.NewService(b.Attendance, b.Hub, logger)
	dir := directory.NewService(b.Directory, led, directoryOptions(cfg), logger)
	cat := catalog.New(b.Catalog, b.Queue, logger)

	if err := dir.SeedCodeSequences(ctx); err != nil {
		return err
	}
	if err := dir.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	deps := api.Deps{
		Ledger:     led,
		Attendance: att,
		Directory:  dir,
		Catalog:    cat,
		Hub:        b.Hub,
		Tokens:     auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Health:     b.Health,
		Logger:     logger,
		Heartbeat:  cfg.StreamHeartbeat,
	}
	if cfg.CloudinaryConfigured() {
		deps.Uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("cloudinary not configured, uploads disabled")
	}

	// an in-process queue has no external worker to drain it
	if b.InProcessQueue {
		go func() {
			if err := worker.NewDeliverer(cat, b.Hub, logger).Run(ctx, b.Queue); err != nil {
				logger.Error("notification delivery stopped", log.FieldError, err)
			}
		}()
	}

	h := api.New(deps)
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.Router(api.RouterOptions{
			AllowOrigins: cfg.CORSOrigins,
			Limiter:      b.Limiter,
			Logger:       logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: live streams stay open
		IdleTimeout: 60 * time.Second,
	}
	srv.RegisterOnShutdown(h.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "data_backend", cfg.DataBackend, "queue_backend", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server", log.FieldOperation, log.OpShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", log.FieldError, err)
	}
	logger.Info("server exited")
	return nil
}

func directoryOptions(cfg config.App) directory.Options {
	opts := directory.DefaultOptions()
	opts.StudentSeries.Prefix = cfg.StudentCodePrefix
	opts.StudentSeries.Pad = cfg.StudentCodePad
	opts.TeacherSeries.Prefix = cfg.TeacherCodePrefix
	opts.DefaultFeeTotal = cfg.DefaultFeeTotal
	opts.DefaultSalary = cfg.DefaultSalary
	return opts
}
