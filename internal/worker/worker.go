package worker

import (
	"context"

	"warehouse-service/internal/broker"
	"warehouse-service/internal/models"
	"warehouse-service/internal/util"

	"go.uber.org/zap"
)

// CacheInvalidator drops cached product records
type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, ids ...int64) error
}

// ProductCacheWorker keeps the product cache of every replica in step with
// committed stock changes, including those made by other replicas.
type ProductCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        CacheInvalidator
	logger       *zap.Logger
}

// NewProductCacheWorker creates a new cache worker
func NewProductCacheWorker(consumer *broker.Consumer, cache CacheInvalidator) *ProductCacheWorker {
	w := &ProductCacheWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		cache:        cache,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderEvent(w.handleOrderEvent)
	w.eventHandler.OnProductEvent(w.handleProductEvent)
	return w
}

// Handler exposes the event routing for callers that feed messages directly
func (w *ProductCacheWorker) Handler() *broker.EventHandler {
	return w.eventHandler
}

func (w *ProductCacheWorker) handleOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	if event.StockDelta == 0 {
		return nil
	}
	return w.invalidate(ctx, event.ProductID, event.EventType)
}

func (w *ProductCacheWorker) handleProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return w.invalidate(ctx, event.ProductID, event.EventType)
}

func (w *ProductCacheWorker) invalidate(ctx context.Context, productID int64, eventType string) error {
	if err := w.cache.InvalidateProduct(ctx, productID); err != nil {
		w.logger.Warn("Failed to invalidate product cache",
			zap.Int64("product_id", productID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return err
	}
	return nil
}

// Start consumes until ctx is cancelled
func (w *ProductCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting product cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProductCacheWorker) Stop() error {
	w.logger.Info("Stopping product cache worker")
	return w.consumer.Close()
}
