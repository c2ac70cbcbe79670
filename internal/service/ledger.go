package service

import (
	"errors"
	"fmt"

	"warehouse-service/internal/models"
)

// Adjustment is the outcome of reconciling one order mutation against its product.
// Delta is added to the product stock; Quantity and Status are the order's new values.
type Adjustment struct {
	Delta    int
	Quantity int
	Status   models.OrderStatus
}

// Apply adds the delta to product stock, refusing to take it below zero.
func (a Adjustment) Apply(product *models.Product) error {
	next := product.Stock + a.Delta
	if next < 0 {
		return newError(ErrInsufficientStock,
			fmt.Sprintf("Insufficient stock: available=%d, requested=%d", product.Stock, -a.Delta), nil)
	}
	product.Stock = next
	return nil
}

// ReserveForCreate computes the deduction for a new order of quantity units.
func ReserveForCreate(product *models.Product, quantity int) (Adjustment, error) {
	if quantity <= 0 {
		return Adjustment{}, validation("Quantity must be greater than zero")
	}
	if product.Stock < quantity {
		return Adjustment{}, newError(ErrInsufficientStock,
			fmt.Sprintf("Insufficient stock: available=%d, requested=%d", product.Stock, quantity), nil)
	}
	return Adjustment{Delta: -quantity, Quantity: quantity, Status: models.OrderStatusCreated}, nil
}

// Reconcile computes the stock delta of changing an order's quantity and/or status.
// The quantity change is evaluated first, so a cancellation in the same request
// returns the new quantity.
func Reconcile(order *models.Order, product *models.Product, quantity *int, status *models.OrderStatus) (Adjustment, error) {
	adj := Adjustment{Quantity: order.Quantity, Status: order.Status}

	if quantity != nil && *quantity != order.Quantity {
		if *quantity <= 0 {
			return Adjustment{}, validation("Quantity must be greater than zero")
		}
		if order.Status.IsTerminal() {
			return Adjustment{}, newError(ErrInvalidTransition,
				fmt.Sprintf("Cannot change quantity of a %s order", order.Status), nil)
		}

		diff := *quantity - order.Quantity
		if diff > 0 && product.Stock < diff {
			return Adjustment{}, newError(ErrInsufficientStock,
				fmt.Sprintf("Insufficient stock for update: available=%d, requested=%d", product.Stock, diff), nil)
		}
		adj.Delta -= diff
		adj.Quantity = *quantity
	}

	if status != nil {
		next, effect, err := models.Transition(order.Status, *status)
		if err != nil {
			var invalid *models.InvalidStatusError
			if errors.As(err, &invalid) {
				return Adjustment{}, newError(ErrInvalidStatus, invalid.Error(), nil)
			}
			return Adjustment{}, newError(ErrInvalidTransition,
				fmt.Sprintf("Cannot change status from %s to %s", order.Status, *status), nil)
		}
		if effect == models.StockReleased {
			adj.Delta += adj.Quantity
		}
		adj.Status = next
	}

	return adj, nil
}

// ReleaseForDelete returns the units an order still holds.
func ReleaseForDelete(order *models.Order) Adjustment {
	adj := Adjustment{Quantity: order.Quantity, Status: order.Status}
	if order.HoldsStock() {
		adj.Delta = order.Quantity
	}
	return adj
}
