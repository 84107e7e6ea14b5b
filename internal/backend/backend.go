// Package backend opens the stores, hub, queue and limiter selected by the
// configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"coaching/internal/attendance"
	"coaching/internal/catalog"
	"coaching/internal/config"
	"coaching/internal/directory"
	"coaching/internal/httpmiddleware"
	"coaching/internal/ledger"
	"coaching/internal/live"
	"coaching/internal/log"
	"coaching/internal/queue"
	"coaching/internal/store"
	"coaching/internal/store/memory"
)

// Backends holds every opened dependency.
type Backends struct {
	Ledger     ledger.Store
	Attendance attendance.Store
	Directory  directory.Store
	Catalog    catalog.Store
	Hub        live.Hub
	Queue      queue.Queue
	Limiter    httpmiddleware.Limiter

	// InProcessQueue is set when the queue lives in this process, so no
	// separate worker can drain it.
	InProcessQueue bool

	db       *store.DB
	redis    *store.Redis
	cleanups []func() error
}

// Open connects the backends named by cfg. Postgres migrations are applied
// when migrate is true. On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.App, migrate bool, logger *log.Logger) (*Backends, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	b := &Backends{}

	if err := b.openData(ctx, cfg, migrate, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.openQueue(cfg, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backends) openData(ctx context.Context, cfg config.App, migrate bool, logger *log.Logger) error {
	if cfg.DataBackend == "memory" {
		mem := memory.New()
		b.Ledger, b.Attendance, b.Directory, b.Catalog = mem, mem, mem, mem
		b.Hub = live.NewMemory(64)
		b.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		logger.Info("using in-memory data backend")
		return nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	b.db = db
	b.cleanups = append(b.cleanups, db.Close)
	if migrate {
		if err := store.RunMigrations(db.Client); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}
	b.Ledger = ledger.NewRepository(db.Client)
	b.Attendance = attendance.NewRepository(db.Client)
	b.Directory = directory.NewRepository(db.Client)
	b.Catalog = catalog.NewRepository(db.Client)

	rdb := b.redisClient(cfg)
	b.Hub = live.NewRedis(rdb.Client, "coaching:live:")
	b.Limiter = httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin)
	logger.Info("using postgres data backend", "redis", cfg.RedisAddr)
	return nil
}

func (b *Backends) openQueue(cfg config.App, logger *log.Logger) error {
	switch cfg.QueueBackend {
	case "memory":
		b.Queue = queue.NewInMemory(256)
		b.InProcessQueue = true
	case "amqp":
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		b.Queue = q
		b.cleanups = append(b.cleanups, q.Close)
	default:
		b.Queue = queue.NewRedisQueue(b.redisClient(cfg).Client, "")
	}
	logger.Info("queue ready", "backend", cfg.QueueBackend)
	return nil
}

func (b *Backends) redisClient(cfg config.App) *store.Redis {
	if b.redis == nil {
		b.redis = store.NewRedis(cfg.RedisAddr)
		b.cleanups = append(b.cleanups, b.redis.Close)
	}
	return b.redis
}

// Health reports each networked dependency. In-memory backends have none.
func (b *Backends) Health(ctx context.Context) map[string]bool {
	checks := map[string]bool{}
	if b.db != nil {
		checks["db"] = b.db.Healthy(ctx)
	}
	if b.redis != nil {
		checks["redis"] = b.redis.Healthy(ctx)
	}
	return checks
}

// Close releases everything in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}
