package store

import (
	"context"

	"warehouse-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateProduct creates a new product
func (s *queries) CreateProduct(ctx context.Context, product *models.Product) error {
	err := s.q.QueryRowxContext(ctx, `
		INSERT INTO products (name, price, stock)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		product.Name, product.Price, product.Stock).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	return translate(err)
}

// GetProductByID retrieves a product by ID
func (s *queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// GetProductForUpdate retrieves a product and locks its row (FOR UPDATE)
func (s *queries) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, "SELECT * FROM products WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// ListProducts retrieves a page of products
func (s *queries) ListProducts(ctx context.Context, offset, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := sqlx.SelectContext(ctx, s.q, &products,
		"SELECT * FROM products ORDER BY id OFFSET $1 LIMIT $2", offset, limit)
	return products, translate(err)
}

// UpdateProduct overwrites name, price and stock
func (s *queries) UpdateProduct(ctx context.Context, product *models.Product) error {
	err := s.q.QueryRowxContext(ctx,
		"UPDATE products SET name = $1, price = $2, stock = $3, updated_at = NOW() WHERE id = $4 RETURNING updated_at",
		product.Name, product.Price, product.Stock, product.ID).Scan(&product.UpdatedAt)
	return translate(err)
}

// UpdateProductStock sets the stock counter
func (s *queries) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2", stock, id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

// DeleteProduct removes a product
func (s *queries) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}
