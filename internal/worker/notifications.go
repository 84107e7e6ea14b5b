// Package worker runs the background jobs: notification delivery and queue
// depth reporting.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coaching/internal/apperr"
	"coaching/internal/catalog"
	"coaching/internal/live"
	"coaching/internal/log"
	"coaching/internal/metrics"
	"coaching/internal/queue"
)

// Deliverer marks queued notifications delivered and fans them out to live
// subscribers.
type Deliverer struct {
	catalog *catalog.Catalog
	hub     live.Hub
	log     *log.Logger
	now     func() time.Time
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(cat *catalog.Catalog, hub live.Hub, logger *log.Logger) *Deliverer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Deliverer{
		catalog: cat,
		hub:     hub,
		log:     logger.WithComponent(log.ComponentWorker),
		now:     time.Now,
	}
}

// Run consumes q until ctx ends. A failing message is logged and skipped.
func (d *Deliverer) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	d.log.InfoContext(ctx, "notification delivery started")
	for msg := range msgs {
		if err := d.Handle(ctx, msg); err != nil {
			metrics.QueueMessages.WithLabelValues(msg.Type, "failed").Inc()
			d.log.ErrorContext(ctx, "notification delivery failed", log.FieldError, err)
			continue
		}
		metrics.QueueMessages.WithLabelValues(msg.Type, "processed").Inc()
	}
	d.log.InfoContext(ctx, "notification delivery stopped")
	return nil
}

// Handle delivers one message. Messages of other types are ignored. A
// notification deleted before delivery is dropped.
func (d *Deliverer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != catalog.NotificationMessage {
		return nil
	}
	var n catalog.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		return err
	}
	delivered, err := d.catalog.MarkDelivered(ctx, n.ID, d.now())
	if errors.Is(err, apperr.ErrNotFound) {
		d.log.WarnContext(ctx, "notification gone before delivery", "notification_id", n.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if err := d.hub.Publish(ctx, live.NotificationsTopic, delivered); err != nil {
		return err
	}
	metrics.NotificationsDelivered.Inc()
	d.log.InfoContext(ctx, "notification delivered", "notification_id", n.ID, "audience", n.Audience)
	return nil
}

// ReportDepth samples the queue backlog every interval until ctx ends.
// Backends that cannot report depth only log a heartbeat.
func ReportDepth(ctx context.Context, q queue.Queue, every time.Duration, logger *log.Logger) error {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)
	depther, _ := q.(queue.Depther)
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if depther == nil {
				logger.DebugContext(ctx, "worker heartbeat")
				continue
			}
			n, err := depther.Depth(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.WarnContext(ctx, "queue depth unavailable", log.FieldError, err)
				continue
			}
			metrics.QueueDepth.Set(float64(n))
			logger.DebugContext(ctx, "worker heartbeat", "queue_depth", n)
		}
	}
}
