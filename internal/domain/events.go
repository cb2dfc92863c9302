package domain

import "time"

const EventOrderCreated = "order_created"

type OrderCreatedEvent struct {
	Order     Order     `json:"order"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOrderCreatedEvent(order Order, at time.Time) OrderCreatedEvent {
	return OrderCreatedEvent{
		Order:     order,
		Event:     EventOrderCreated,
		Timestamp: at.UTC(),
	}
}
