package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderUpdated   = "ORDER_UPDATED"
	EventTypeOrderDeleted   = "ORDER_DELETED"
	EventTypeProductUpdated = "PRODUCT_UPDATED"
	EventTypeProductDeleted = "PRODUCT_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after an order mutation commits.
// StockDelta is the change applied to the product stock by that mutation.
type OrderEvent struct {
	BaseEvent
	OrderID    int64       `json:"order_id"`
	UserID     int64       `json:"user_id"`
	ProductID  int64       `json:"product_id"`
	Quantity   int         `json:"quantity"`
	Status     OrderStatus `json:"status"`
	StockDelta int         `json:"stock_delta"`
}

// ProductEvent is published after a direct product update or deletion
type ProductEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
}
