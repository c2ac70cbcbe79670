package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists every permitted status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// StockEffect is the stock side effect of a status transition.
type StockEffect int

const (
	// StockUnchanged leaves product stock as is.
	StockUnchanged StockEffect = iota
	// StockReleased returns the order quantity to product stock.
	StockReleased
)

// ErrInvalidTransition is returned when a terminal order is asked to leave its state.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidStatusError reports a status string outside the permitted set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	allowed := make([]string, len(OrderStatuses))
	for i, s := range OrderStatuses {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid status %q. Allowed: [%s]", e.Value, strings.Join(allowed, ", "))
}

// ParseOrderStatus normalizes raw to upper case and validates it.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &InvalidStatusError{Value: raw}
	}
	return s, nil
}

// Valid reports whether s is one of the permitted statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further stock adjustment applies to an order in s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusDelivered
}

func (s OrderStatus) String() string {
	return string(s)
}

// Transition returns the status an order moves to and the stock effect of moving there.
// Non-terminal orders may move anywhere; terminal orders only accept their own status again.
// Moving a delivered or cancelled order to any other status fails with
// ErrInvalidTransition; it is never applied as a status-only update that
// leaves stock untouched.
func Transition(current, requested OrderStatus) (OrderStatus, StockEffect, error) {
	if !requested.Valid() {
		return current, StockUnchanged, &InvalidStatusError{Value: string(requested)}
	}

	if current.IsTerminal() {
		if requested == current {
			return current, StockUnchanged, nil
		}
		return current, StockUnchanged, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
	}

	if requested == OrderStatusCancelled {
		return requested, StockReleased, nil
	}
	return requested, StockUnchanged, nil
}

// Scan implements sql.Scanner.
func (s *OrderStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = OrderStatus(v)
	case []byte:
		*s = OrderStatus(v)
	case nil:
		*s = ""
	default:
		return fmt.Errorf("cannot scan %T into OrderStatus", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}
