package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced = "ORDER_PLACED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is published after an order transaction commits.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID int64                  `json:"order_id"`
	UserID  int64                  `json:"user_id"`
	Total   decimal.Decimal        `json:"total"`
	Items   []OrderPlacedEventItem `json:"items"`
}

// OrderPlacedEventItem carries the stock-relevant slice of an order line.
type OrderPlacedEventItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
