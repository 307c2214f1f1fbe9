package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process broker. Messages published while nobody is
// subscribed to a channel, or while a subscriber's buffer is full, are
// dropped.
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan Message)}
}

func (m *Memory) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("memory broker closed")
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	for _, ch := range m.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe blocks until ctx is cancelled or the broker is closed. Handler
// errors are ignored; there is nothing to redeliver to.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	ch := make(chan Message, 64)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("memory broker closed")
	}
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	defer m.unsubscribe(channel, ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, msg)
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	m.subs = nil
	return nil
}

func (m *Memory) unsubscribe(channel string, ch chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	subs := m.subs[channel]
	for i, candidate := range subs {
		if candidate == ch {
			m.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
