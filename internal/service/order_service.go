package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"
	"warehouse-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// OrderService handles order business logic. Every mutation runs the stock
// ledger and the order write in one store transaction.
type OrderService struct {
	store       store.DataStore
	cache       ProductCache
	idempotency IdempotencyStore
	events      EventPublisher
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store store.DataStore,
	cache ProductCache,
	idempotency IdempotencyStore,
	events EventPublisher,
) *OrderService {
	return &OrderService{
		store:       store,
		cache:       cache,
		idempotency: idempotency,
		events:      events,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// UpdateOrderRequest carries the fields to change; nil fields are left as is
type UpdateOrderRequest struct {
	Quantity *int    `json:"quantity,omitempty" binding:"omitempty,min=1"`
	Status   *string `json:"status,omitempty"`
}

// OrderChange is a committed order mutation and the stock delta it applied
type OrderChange struct {
	Order      models.Order
	StockDelta int
}

// CreateOrder reserves stock and inserts the order at CREATED. A repeated
// idempotency key returns the order created by the first request.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, idempotencyKey string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity))
	defer func() { util.EndSpan(span, err) }()

	if idempotencyKey != "" {
		existing, release, err := s.claimIdempotencyKey(ctx, idempotencyKey)
		if err != nil || existing != nil {
			return existing, err
		}
		defer release()
	}

	var adj Adjustment
	start := time.Now()
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		if _, err := repo.GetUserByID(ctx, req.UserID); err != nil {
			return lookup(err, "User")
		}

		product, err := repo.GetProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return lookup(err, "Product")
		}

		adj, err = ReserveForCreate(product, req.Quantity)
		if err != nil {
			return err
		}
		if err := adj.Apply(product); err != nil {
			return err
		}
		if err := repo.UpdateProductStock(ctx, product.ID, product.Stock); err != nil {
			return err
		}

		order = &models.Order{
			UserID:    req.UserID,
			ProductID: req.ProductID,
			Quantity:  adj.Quantity,
			Status:    adj.Status,
		}
		return repo.CreateOrder(ctx, order)
	})
	util.LedgerTxLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, s.fail("create", err, "Failed to create order")
	}

	util.OrdersCreatedTotal.Inc()
	util.RecordStockMovement(adj.Delta)
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity))

	if idempotencyKey != "" {
		if err := s.idempotency.SetIdempotencyKey(ctx, idempotencyKey, order.ID, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		}
	}

	s.afterCommit(ctx, models.EventTypeOrderCreated, OrderChange{Order: *order, StockDelta: adj.Delta})
	return order, nil
}

// claimIdempotencyKey returns the order a key already produced, or takes the
// key's lock and returns its release func. Redis failures degrade to a
// non-idempotent create.
func (s *OrderService) claimIdempotencyKey(ctx context.Context, key string) (*models.Order, func(), error) {
	noop := func() {}

	existing, err := s.lookupIdempotencyKey(ctx, key)
	if err != nil || existing != nil {
		return existing, noop, err
	}

	lockKey := "order:" + key
	acquired, err := s.idempotency.AcquireLock(ctx, lockKey, idempotencyLockTTL)
	if err != nil {
		s.logger.Warn("Idempotency lock failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, noop, nil
	}
	if !acquired {
		util.OrdersFailedTotal.WithLabelValues("create", "conflict").Inc()
		return nil, noop, newError(ErrConflict, "A request with this Idempotency-Key is already in progress", nil)
	}

	release := func() {
		if err := s.idempotency.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.String("idempotency_key", key), zap.Error(err))
		}
	}

	// A request holding the lock may have finished between the first lookup
	// and our acquire.
	existing, err = s.lookupIdempotencyKey(ctx, key)
	if err != nil || existing != nil {
		release()
		return existing, noop, err
	}
	return nil, release, nil
}

// lookupIdempotencyKey returns the order stored under key, or nil when the key
// is unknown, its order was deleted, or Redis is unavailable.
func (s *OrderService) lookupIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	orderID, found, err := s.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err == nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", orderID))
		return order, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, classify(err, "Failed to create order")
	}
	// The first order has since been deleted; treat the key as fresh.
	return nil, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(lookup(err, "Order"), "Failed to fetch order")
	}
	return order, nil
}

// UpdateOrder changes quantity and/or status, reconciling product stock in the
// same transaction. A ledger failure leaves both records untouched.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID int64, req *UpdateOrderRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrder", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	if req.Quantity == nil && req.Status == nil {
		return nil, s.fail("update", validation("No fields provided for update"), "")
	}

	var status *models.OrderStatus
	if req.Status != nil {
		parsed, err := models.ParseOrderStatus(*req.Status)
		if err != nil {
			return nil, s.fail("update", newError(ErrInvalidStatus, err.Error(), nil), "")
		}
		status = &parsed
	}

	var (
		adj      Adjustment
		previous models.OrderStatus
	)
	start := time.Now()
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookup(err, "Order")
		}
		previous = current.Status

		product, err := repo.GetProductForUpdate(ctx, current.ProductID)
		if err != nil {
			return lookup(err, "Product")
		}

		adj, err = Reconcile(current, product, req.Quantity, status)
		if err != nil {
			return err
		}

		if adj.Delta != 0 {
			if err := adj.Apply(product); err != nil {
				return err
			}
			if err := repo.UpdateProductStock(ctx, product.ID, product.Stock); err != nil {
				return err
			}
		}

		current.Quantity = adj.Quantity
		current.Status = adj.Status
		if err := repo.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	util.LedgerTxLatency.WithLabelValues("update").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, s.fail("update", err, "Failed to update order")
	}

	util.OrdersUpdatedTotal.WithLabelValues(order.Status.String()).Inc()
	if previous != models.OrderStatusCancelled && order.Status == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	util.RecordStockMovement(adj.Delta)
	s.logger.Info("Order updated",
		zap.Int64("order_id", order.ID),
		zap.String("status", order.Status.String()),
		zap.Int("quantity", order.Quantity),
		zap.Int("stock_delta", adj.Delta))

	s.afterCommit(ctx, models.EventTypeOrderUpdated, OrderChange{Order: *order, StockDelta: adj.Delta})
	return order, nil
}

// DeleteOrder removes an order, returning its units to stock if it still holds them
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) (err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	var change OrderChange
	start := time.Now()
	err = s.store.WithTx(ctx, func(repo store.Repository) error {
		order, err := repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return lookup(err, "Order")
		}
		change, err = s.removeOrder(ctx, repo, order)
		return err
	})
	util.LedgerTxLatency.WithLabelValues("delete").Observe(time.Since(start).Seconds())

	if err != nil {
		return s.fail("delete", err, "Failed to delete order")
	}

	s.NotifyDeleted(ctx, []OrderChange{change})
	return nil
}

// ReleaseUserOrders reconciles and deletes every order of a user inside the
// caller's transaction. The caller reports the changes with NotifyDeleted
// once the transaction has committed.
//
// Product rows are locked up front in ascending id order, so two deletions
// touching the same products cannot wait on each other.
func (s *OrderService) ReleaseUserOrders(ctx context.Context, repo store.Repository, userID int64) ([]OrderChange, error) {
	orders, err := repo.ListOrdersByUserForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var productIDs []int64
	for i := range orders {
		id := orders[i].ProductID
		if ReleaseForDelete(&orders[i]).Delta != 0 && !seen[id] {
			seen[id] = true
			productIDs = append(productIDs, id)
		}
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
	for _, id := range productIDs {
		if _, err := repo.GetProductForUpdate(ctx, id); err != nil {
			return nil, lookup(err, "Product")
		}
	}

	changes := make([]OrderChange, 0, len(orders))
	for i := range orders {
		change, err := s.removeOrder(ctx, repo, &orders[i])
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// NotifyDeleted records metrics and publishes events for committed deletions
func (s *OrderService) NotifyDeleted(ctx context.Context, changes []OrderChange) {
	for _, change := range changes {
		util.OrdersDeletedTotal.Inc()
		util.RecordStockMovement(change.StockDelta)
		if change.StockDelta == 0 {
			s.logger.Info("Order deleted without restock; status already terminal",
				zap.Int64("order_id", change.Order.ID),
				zap.String("status", change.Order.Status.String()))
		} else {
			s.logger.Info("Order deleted",
				zap.Int64("order_id", change.Order.ID),
				zap.Int("restocked", change.StockDelta))
		}
		s.afterCommit(ctx, models.EventTypeOrderDeleted, change)
	}
}

func (s *OrderService) removeOrder(ctx context.Context, repo store.Repository, order *models.Order) (OrderChange, error) {
	adj := ReleaseForDelete(order)

	if adj.Delta != 0 {
		product, err := repo.GetProductForUpdate(ctx, order.ProductID)
		if err != nil {
			return OrderChange{}, lookup(err, "Product")
		}
		if err := adj.Apply(product); err != nil {
			return OrderChange{}, err
		}
		if err := repo.UpdateProductStock(ctx, product.ID, product.Stock); err != nil {
			return OrderChange{}, err
		}
	}

	if err := repo.DeleteOrder(ctx, order.ID); err != nil {
		return OrderChange{}, lookup(err, "Order")
	}
	return OrderChange{Order: *order, StockDelta: adj.Delta}, nil
}

// afterCommit invalidates the cached product and publishes the order event.
// Neither failure affects the committed result.
func (s *OrderService) afterCommit(ctx context.Context, eventType string, change OrderChange) {
	if change.StockDelta != 0 {
		if err := s.cache.InvalidateProduct(ctx, change.Order.ProductID); err != nil {
			s.logger.Warn("Failed to invalidate product cache",
				zap.Int64("product_id", change.Order.ProductID),
				zap.Error(err))
		}
	}

	event := &models.OrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OrderID:    change.Order.ID,
		UserID:     change.Order.UserID,
		ProductID:  change.Order.ProductID,
		Quantity:   change.Order.Quantity,
		Status:     change.Order.Status,
		StockDelta: change.StockDelta,
	}

	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", change.Order.ID),
			zap.Error(err))
	}
}

// fail classifies err, counts it and logs persistence failures
func (s *OrderService) fail(operation string, err error, message string) error {
	err = classify(err, message)
	util.OrdersFailedTotal.WithLabelValues(operation, Reason(err)).Inc()
	if errors.Is(err, ErrPersistence) {
		s.logger.Error("Order transaction rolled back",
			zap.String("operation", operation),
			zap.Error(err))
	}
	return err
}
