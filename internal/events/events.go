// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tecnokaijin/storefront/internal/models"
)

// Event types
const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// Event is one order lifecycle notification
type Event struct {
	EventID     string         `json:"event_id"`
	Type        string         `json:"type"`
	OrderID     int64          `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	CreatedAt   time.Time      `json:"created_at"`
	Payload     map[string]any `json:"payload"`
}

// Key partitions events so every event of an order lands in order
func (e Event) Key() string {
	return strconv.FormatInt(e.OrderID, 10)
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

func newEvent(typ string, o *models.Order, payload map[string]any) Event {
	return Event{
		EventID:     uuid.NewString(),
		Type:        typ,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
	}
}

// OrderCreated describes a newly placed order
func OrderCreated(o *models.Order) Event {
	units := 0
	for _, item := range o.Items {
		units += item.Quantity
	}
	return newEvent(TypeOrderCreated, o, map[string]any{
		"user_id":        o.UserID,
		"total":          o.Total,
		"units":          units,
		"lines":          len(o.Items),
		"payment_method": o.PaymentMethod,
		"status":         o.Status,
	})
}

// StatusChanged describes an applied status transition
func StatusChanged(o *models.Order, from models.OrderStatus) Event {
	return newEvent(TypeOrderStatusChanged, o, map[string]any{
		"user_id": o.UserID,
		"from":    from,
		"to":      o.Status,
	})
}

// LogPublisher writes events to the standard logger
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	log.Printf("[EVENTS] %s", data)
	return nil
}

func (LogPublisher) Close() error { return nil }
