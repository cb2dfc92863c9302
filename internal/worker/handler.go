package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/bookstore-orders/internal/domain"
)

var ErrMalformedEvent = errors.New("malformed order event")

// NotificationHandler consumes order_created events. Events of other kinds
// are skipped so the queue can carry future lifecycle events.
type NotificationHandler struct {
	logger *slog.Logger
	notify func(ctx context.Context, event domain.OrderCreatedEvent) error
}

func NewNotificationHandler(logger *slog.Logger) *NotificationHandler {
	h := &NotificationHandler{logger: logger}
	h.notify = h.logConfirmation
	return h
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// A poison message would otherwise block the partition forever.
		h.logger.Error("dropping undecodable event", "error", err, "payload_bytes", len(payload))
		return nil
	}

	if event.Event != domain.EventOrderCreated {
		h.logger.Warn("skipping unknown event", "event", event.Event)
		return nil
	}

	if event.Order.ID == "" || event.Order.UserID == "" {
		h.logger.Error("dropping incomplete event", "error", ErrMalformedEvent, "order_id", event.Order.ID)
		return nil
	}

	if err := h.notify(ctx, event); err != nil {
		return fmt.Errorf("notify order %s: %w", event.Order.ID, err)
	}
	return nil
}

func (h *NotificationHandler) logConfirmation(_ context.Context, event domain.OrderCreatedEvent) error {
	h.logger.Info("order confirmation",
		"order_id", event.Order.ID,
		"user_id", event.Order.UserID,
		"book_id", event.Order.BookID,
		"quantity", event.Order.Quantity,
		"ordered_at", event.Order.CreatedAt,
		"emitted_at", event.Timestamp,
		"lag", event.Timestamp.Sub(event.Order.CreatedAt),
	)
	return nil
}
