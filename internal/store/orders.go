package store

import (
	"context"

	"warehouse-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (s *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, product_id, quantity, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.q.QueryRowxContext(ctx, query,
		order.UserID, order.ProductID, order.Quantity, order.Status).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	return translate(err)
}

// GetOrderByID retrieves an order by ID
func (s *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// GetOrderForUpdate retrieves an order and locks its row
func (s *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// ListOrdersByUserForUpdate retrieves and locks every order of a user
func (s *queries) ListOrdersByUserForUpdate(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, s.q, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY id FOR UPDATE", userID)
	return orders, translate(err)
}

// CountOpenOrdersByProduct counts orders still holding stock of a product
func (s *queries) CountOpenOrdersByProduct(ctx context.Context, productID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.q, &n,
		"SELECT COUNT(*) FROM orders WHERE product_id = $1 AND status IN ($2, $3)",
		productID, models.OrderStatusCreated, models.OrderStatusShipped)
	return n, translate(err)
}

// UpdateOrder persists quantity and status
func (s *queries) UpdateOrder(ctx context.Context, order *models.Order) error {
	err := s.q.QueryRowxContext(ctx,
		"UPDATE orders SET quantity = $1, status = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		order.Quantity, order.Status, order.ID).Scan(&order.UpdatedAt)
	return translate(err)
}

// DeleteOrder removes an order
func (s *queries) DeleteOrder(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}
