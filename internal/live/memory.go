package live

import (
	"context"
	"sync"
)

// Memory is an in-process hub for tests and single-instance dev runs.
// Slow subscribers drop messages instead of blocking publishers.
type Memory struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[chan []byte]struct{}
}

// NewMemory creates a hub whose subscriptions buffer up to buffer payloads.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 16
	}
	return &Memory{buffer: buffer, subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers v to every current subscriber of topic.
func (m *Memory) Publish(_ context.Context, topic string, v any) error {
	payload, err := encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber on topic.
func (m *Memory) Subscribe(_ context.Context, topic string) (*Subscription, error) {
	ch := make(chan []byte, m.buffer)
	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[chan []byte]struct{})
	}
	m.subs[topic][ch] = struct{}{}
	m.mu.Unlock()

	return newSubscription(topic, ch, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[topic], ch)
		if len(m.subs[topic]) == 0 {
			delete(m.subs, topic)
		}
		close(ch)
		return nil
	}), nil
}

// Subscribers returns the number of open subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}
