package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sweetshop/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// AttrEventType names the attribute carrying the event type.
const AttrEventType = "event_type"

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// InProcess reports whether backend names the in-process broker, which
// cannot carry messages between processes.
func InProcess(backend string) bool {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "none":
		return true
	}
	return false
}

// Open selects the backend named in cfg. "none" yields an in-process broker
// that only reaches subscribers in the same process.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	if InProcess(cfg.Backend) {
		return New(NewMemory()), nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return New(client), nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes event as JSON and tags it with eventType.
func (m *MQ) PublishJSON(ctx context.Context, channel, eventType string, event any) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return m.backend.Publish(ctx, channel, data, map[string]string{AttrEventType: eventType})
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
