package service

import (
	"context"
	"time"

	"warehouse-service/internal/models"
)

// ProductCache is a read-through cache of product records. Every invalidation
// bumps the product's version; SetProduct only fills the cache if the version
// read before the database read is still current, so a fill racing a commit
// cannot bring back the pre-commit record.
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, bool, error)
	ProductVersion(ctx context.Context, id int64) (int64, error)
	SetProduct(ctx context.Context, product *models.Product, version int64, ttl time.Duration) error
	InvalidateProduct(ctx context.Context, ids ...int64) error
}

// IdempotencyStore remembers which order a client idempotency key produced
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// EventPublisher publishes domain events after a commit
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
}

// Pagination defaults for list endpoints
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

func checkPage(skip, limit int) error {
	if skip < 0 {
		return validation("skip must be greater than or equal to 0")
	}
	if limit < 1 || limit > MaxPageLimit {
		return validation("limit must be between 1 and %d", MaxPageLimit)
	}
	return nil
}

// NoCache satisfies ProductCache and IdempotencyStore without remembering
// anything. Used when no Redis is configured.
type NoCache struct{}

func (NoCache) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	return nil, false, nil
}

func (NoCache) ProductVersion(ctx context.Context, id int64) (int64, error) { return 0, nil }

func (NoCache) SetProduct(ctx context.Context, product *models.Product, version int64, ttl time.Duration) error {
	return nil
}

func (NoCache) InvalidateProduct(ctx context.Context, ids ...int64) error { return nil }

func (NoCache) GetIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	return 0, false, nil
}

func (NoCache) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return nil
}

func (NoCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoCache) ReleaseLock(ctx context.Context, lockKey string) error { return nil }
