package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/types"
)

// Subscriber is satisfied by *mq.MQ.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// StockMonitor consumes purchase events and warns when stock runs low.
type StockMonitor struct {
	log       *slog.Logger
	threshold int
	onLow     func(types.PurchaseCompleted)
}

func NewStockMonitor(log *slog.Logger, threshold int) *StockMonitor {
	return &StockMonitor{log: log, threshold: threshold}
}

// OnLowStock registers a callback invoked for each low-stock event.
func (m *StockMonitor) OnLowStock(fn func(types.PurchaseCompleted)) {
	m.onLow = fn
}

// Run blocks until ctx is done or the subscription fails.
func (m *StockMonitor) Run(ctx context.Context, sub Subscriber, topic string) error {
	m.log.Info("worker", "status", "consuming", "topic", topic, "threshold", m.threshold)
	return sub.Subscribe(ctx, topic, m.Handle)
}

// Handle processes one delivery. Malformed payloads are logged and
// acknowledged so they are not redelivered forever.
func (m *StockMonitor) Handle(ctx context.Context, msg mq.Message) error {
	if eventType := msg.Attributes[mq.AttrEventType]; eventType != "" && eventType != services.EventPurchaseCompleted {
		m.log.Debug("skip event", "messageID", msg.ID, "eventType", eventType)
		return nil
	}

	var event types.PurchaseCompleted
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		m.log.Warn("discard malformed event", "messageID", msg.ID, "error", err)
		return nil
	}

	m.log.Info("purchase",
		"purchaseID", event.PurchaseID,
		"sweetID", event.SweetID,
		"quantity", event.Quantity,
		"total", fmt.Sprintf("%.2f", event.TotalPrice),
		"remaining", event.RemainingQty,
	)
	if event.RemainingQty <= m.threshold {
		m.log.Warn("low stock", "sweetID", event.SweetID, "remaining", event.RemainingQty)
		if m.onLow != nil {
			m.onLow(event)
		}
	}
	return nil
}
