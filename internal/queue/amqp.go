package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"coaching/internal/metrics"
)

// AMQPQueue publishes to a direct exchange bound to one durable queue.
type AMQPQueue struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
}

// NewAMQPQueue dials the broker and declares the exchange, queue and binding.
func NewAMQPQueue(url, exchange, queue string) (*AMQPQueue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q := &AMQPQueue{conn: conn, channel: ch, exchange: exchange, queue: queue}
	if err := q.setup(); err != nil {
		q.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return q, nil
}

func (q *AMQPQueue) setup() error {
	if err := q.channel.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := q.channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := q.channel.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	// one unacked delivery at a time
	return q.channel.Qos(1, 0, false)
}

// Publish sends a persistent message.
func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := q.channel.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Type:         msg.Type,
		Body:         msg.Body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	metrics.QueueMessages.WithLabelValues(msg.Type, "published").Inc()
	return nil
}

// Consume streams deliveries. A delivery is acked once the worker has taken
// it from the channel; an invalid body is rejected without requeue.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := q.channel.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if !json.Valid(d.Body) {
					metrics.QueueMessages.WithLabelValues(d.Type, "malformed").Inc()
					_ = d.Nack(false, false)
					continue
				}
				select {
				case out <- Message{Type: d.Type, Body: d.Body}:
					_ = d.Ack(false)
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Depth returns the number of ready messages.
func (q *AMQPQueue) Depth(context.Context) (int64, error) {
	info, err := q.channel.QueueDeclarePassive(q.queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return int64(info.Messages), nil
}

// Close closes the channel and connection.
func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
