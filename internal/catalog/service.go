package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"coaching/internal/log"
	"coaching/internal/queue"
)

// NotificationMessage is the queue message type for broadcasts.
const NotificationMessage = "notification.broadcast"

// Catalog groups the typed collections.
type Catalog struct {
	Courses        *Collection[Course, *Course]
	Exams          *Collection[Exam, *Exam]
	Notifications  *Collection[Notification, *Notification]
	StudyMaterials *Collection[StudyMaterial, *StudyMaterial]
	TestSeries     *Collection[TestSeriesItem, *TestSeriesItem]

	queue queue.Queue
	log   *log.Logger
}

// New builds the catalog over one document store. q receives broadcast jobs.
func New(store Store, q queue.Queue, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Discard()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Catalog{
		Courses:        NewCollection[Course](Courses, store, v),
		Exams:          NewCollection[Exam](Exams, store, v),
		Notifications:  NewCollection[Notification](Notifications, store, v),
		StudyMaterials: NewCollection[StudyMaterial](StudyMaterials, store, v),
		TestSeries:     NewCollection[TestSeriesItem](TestSeries, store, v),
		queue:          q,
		log:            logger.WithComponent(log.ComponentCatalog),
	}
}

// Broadcast stores the notification and queues it for delivery.
func (c *Catalog) Broadcast(ctx context.Context, n Notification) (Notification, error) {
	if n.Audience == "" {
		n.Audience = "all"
	}
	n.DeliveredAt = nil
	n, err := c.Notifications.Create(ctx, n)
	if err != nil {
		return n, err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return n, err
	}
	if err := c.queue.Publish(ctx, queue.Message{Type: NotificationMessage, Body: body}); err != nil {
		return n, fmt.Errorf("queue notification: %w", err)
	}
	c.log.InfoContext(ctx, "notification queued", log.FieldOperation, log.OpBroadcast, "notification_id", n.ID)
	return n, nil
}

// MarkDelivered stamps a notification as delivered at t. A notification
// that is already delivered keeps its first timestamp.
func (c *Catalog) MarkDelivered(ctx context.Context, id string, t time.Time) (Notification, error) {
	n, err := c.Notifications.Get(ctx, id)
	if err != nil {
		return n, err
	}
	if n.DeliveredAt != nil {
		return n, nil
	}
	at := t.UTC()
	n.DeliveredAt = &at
	return c.Notifications.Replace(ctx, id, n)
}
