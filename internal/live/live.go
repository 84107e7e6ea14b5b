// Package live fans record changes out to views holding an open subscription.
// Every Subscribe must be paired with Close on all exit paths of the view.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"coaching/internal/metrics"
)

// NotificationsTopic carries broadcast notifications for all students.
const NotificationsTopic = "notifications"

// FeesTopic carries fee-account updates for one student.
func FeesTopic(studentID string) string { return "fees:" + studentID }

// AttendanceTopic carries attendance updates for one student.
func AttendanceTopic(studentID string) string { return "attendance:" + studentID }

// Hub publishes JSON payloads to topics and hands out subscriptions.
type Hub interface {
	Publish(ctx context.Context, topic string, v any) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription is a scoped acquisition of a topic. Close releases it and is
// safe to call more than once.
type Subscription struct {
	topic   string
	ch      <-chan []byte
	release func() error
	once    sync.Once
	err     error
}

func newSubscription(topic string, ch <-chan []byte, release func() error) *Subscription {
	metrics.LiveSubscribers.Inc()
	return &Subscription{topic: topic, ch: ch, release: release}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// C returns the payload channel. It is closed after Close.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Close releases the subscription.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		metrics.LiveSubscribers.Dec()
		s.err = s.release()
	})
	return s.err
}

func encode(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return json.Marshal(v)
}
