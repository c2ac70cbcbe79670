package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"
	"warehouse-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService handles product CRUD. Stock written here bypasses the order
// ledger: the last writer wins.
type ProductService struct {
	store    store.DataStore
	cache    ProductCache
	events   EventPublisher
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store store.DataStore, cache ProductCache, events EventPublisher, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		store:    store,
		cache:    cache,
		events:   events,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

type CreateProductRequest struct {
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type UpdateProductRequest struct {
	Name  *string          `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

func validateProductFields(name *string, price *decimal.Decimal, stock *int) error {
	if name != nil && strings.TrimSpace(*name) == "" {
		return validation("name must not be empty")
	}
	if price != nil && price.IsNegative() {
		return validation("price must be greater than or equal to 0")
	}
	if stock != nil && *stock < 0 {
		return validation("stock must be greater than or equal to 0")
	}
	return nil
}

// CreateProduct creates a new product
func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	if err := validateProductFields(&req.Name, &req.Price, &req.Stock); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:  strings.TrimSpace(req.Name),
		Price: req.Price,
		Stock: req.Stock,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		s.logger.Error("Failed to create product", zap.Error(err))
		return nil, classify(err, "Failed to create product")
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.Int("stock", product.Stock))
	return product, nil
}

// GetProduct retrieves a product, reading through the cache
func (s *ProductService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	cached, hit, err := s.cache.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	if hit {
		util.ProductCacheRequestsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.ProductCacheRequestsTotal.WithLabelValues("miss").Inc()

	// The version must be read before the record.
	version, versionErr := s.cache.ProductVersion(ctx, productID)
	if versionErr != nil {
		s.logger.Warn("Product cache version read failed", zap.Int64("product_id", productID), zap.Error(versionErr))
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, classify(lookup(err, "Product"), "Failed to fetch product")
	}

	if versionErr == nil {
		if err := s.cache.SetProduct(ctx, product, version, s.cacheTTL); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return product, nil
}

// ListProducts returns a page of products
func (s *ProductService) ListProducts(ctx context.Context, skip, limit int) ([]models.Product, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	products, err := s.store.ListProducts(ctx, skip, limit)
	if err != nil {
		return nil, classify(err, "Failed to fetch products")
	}
	return products, nil
}

// UpdateProduct applies the given fields. A stock write on a product with open
// orders is allowed but logged and counted.
func (s *ProductService) UpdateProduct(ctx context.Context, productID int64, req *UpdateProductRequest) (*models.Product, error) {
	if req.Name == nil && req.Price == nil && req.Stock == nil {
		return nil, validation("No fields provided for update")
	}
	if err := validateProductFields(req.Name, req.Price, req.Stock); err != nil {
		return nil, err
	}

	var product *models.Product
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetProductForUpdate(ctx, productID)
		if err != nil {
			return lookup(err, "Product")
		}

		if req.Stock != nil && *req.Stock != current.Stock {
			open, err := repo.CountOpenOrdersByProduct(ctx, productID)
			if err != nil {
				return err
			}
			if open > 0 {
				util.ProductStockOverwritesTotal.Inc()
				s.logger.Warn("Direct stock overwrite on product with open orders",
					zap.Int64("product_id", productID),
					zap.Int("open_orders", open),
					zap.Int("old_stock", current.Stock),
					zap.Int("new_stock", *req.Stock))
			}
			current.Stock = *req.Stock
		}
		if req.Name != nil {
			current.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			current.Price = *req.Price
		}

		if err := repo.UpdateProduct(ctx, current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update product", zap.Int64("product_id", productID), zap.Error(err))
		return nil, classify(err, "Failed to update product")
	}

	s.afterCommit(ctx, models.EventTypeProductUpdated, product.ID, product.Stock)
	return product, nil
}

// DeleteProduct removes a product that no order references
func (s *ProductService) DeleteProduct(ctx context.Context, productID int64) error {
	if err := s.store.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, store.ErrForeignKeyViolation) {
			return newError(ErrConflict, "Product is referenced by orders and cannot be deleted", err)
		}
		return classify(lookup(err, "Product"), "Failed to delete product")
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", productID))
	s.afterCommit(ctx, models.EventTypeProductDeleted, productID, 0)
	return nil
}

func (s *ProductService) afterCommit(ctx context.Context, eventType string, productID int64, stock int) {
	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", productID), zap.Error(err))
	}

	event := &models.ProductEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		ProductID: productID,
		Stock:     stock,
	}
	if err := s.events.PublishProductEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish product event", zap.String("event_type", eventType), zap.Error(err))
	}
}
