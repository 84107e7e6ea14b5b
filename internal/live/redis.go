package live

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis is a hub backed by Redis pub/sub so every API instance sees every
// update.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a hub; topics are namespaced under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "coaching:live:"
	}
	return &Redis{client: client, prefix: prefix}
}

// Publish sends v as JSON to the topic channel.
func (r *Redis) Publish(ctx context.Context, topic string, v any) error {
	payload, err := encode(v)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+topic, payload).Err()
}

// Subscribe opens a Redis subscription. The forwarding goroutine ends when
// the subscription is closed.
func (r *Redis) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, r.prefix+topic)
	// Wait for the confirmation so a publish right after Subscribe is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			case <-done:
				return
			}
		}
	}()
	return newSubscription(topic, out, func() error {
		close(done)
		return ps.Close()
	}), nil
}
