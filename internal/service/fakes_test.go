package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"
)

type fakeCache struct {
	mu          sync.Mutex
	products    map[int64]models.Product
	versions    map[int64]int64
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{products: map[int64]models.Product{}, versions: map[int64]int64{}}
}

func (c *fakeCache) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *fakeCache) ProductVersion(ctx context.Context, id int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[id], nil
}

func (c *fakeCache) SetProduct(ctx context.Context, product *models.Product, version int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[product.ID] != version {
		return nil
	}
	c.products[product.ID] = *product
	return nil
}

func (c *fakeCache) InvalidateProduct(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.versions[id]++
		delete(c.products, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fakeIdempotency struct {
	mu    sync.Mutex
	keys  map[string]int64
	locks map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]int64{}, locks: map[string]bool{}}
}

func (f *fakeIdempotency) GetIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.keys[key]
	return id, ok, nil
}

func (f *fakeIdempotency) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = orderID
	return nil
}

func (f *fakeIdempotency) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[lockKey] {
		return false, nil
	}
	f.locks[lockKey] = true
	return true, nil
}

func (f *fakeIdempotency) ReleaseLock(ctx context.Context, lockKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, lockKey)
	return nil
}

type fakePublisher struct {
	mu            sync.Mutex
	orderEvents   []*models.OrderEvent
	productEvents []*models.ProductEvent
}

func (p *fakePublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderEvents = append(p.orderEvents, event)
	return nil
}

func (p *fakePublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.productEvents = append(p.productEvents, event)
	return nil
}

func (p *fakePublisher) orderEventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.orderEvents))
	for i, e := range p.orderEvents {
		out[i] = e.EventType
	}
	return out
}

var errDiskFull = errors.New("disk full")

// failingStore fails the order write of the given operation inside transactions,
// after the ledger has already written the product stock.
type failingStore struct {
	*store.MemoryStore
	failOn string
}

func (s *failingStore) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return s.MemoryStore.WithTx(ctx, func(repo store.Repository) error {
		return fn(failingRepo{Repository: repo, failOn: s.failOn})
	})
}

type failingRepo struct {
	store.Repository
	failOn string
}

func (r failingRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	if r.failOn == "create" {
		return errDiskFull
	}
	return r.Repository.CreateOrder(ctx, order)
}

func (r failingRepo) UpdateOrder(ctx context.Context, order *models.Order) error {
	if r.failOn == "update" {
		return errDiskFull
	}
	return r.Repository.UpdateOrder(ctx, order)
}

func (r failingRepo) DeleteOrder(ctx context.Context, id int64) error {
	if r.failOn == "delete" {
		return errDiskFull
	}
	return r.Repository.DeleteOrder(ctx, id)
}

// interleavingIdempotency runs hook once, right after the first key lookup
// has read its (stale) answer.
type interleavingIdempotency struct {
	*fakeIdempotency
	hook func()
}

func (f *interleavingIdempotency) GetIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	id, found, err := f.fakeIdempotency.GetIdempotencyKey(ctx, key)
	if hook := f.hook; hook != nil {
		f.hook = nil
		hook()
	}
	return id, found, err
}

// interleavingStore runs hook once, right after a product read has returned
// its record but before the caller uses it.
type interleavingStore struct {
	*store.MemoryStore
	hook func()
}

func (s *interleavingStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.MemoryStore.GetProductByID(ctx, id)
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return p, err
}

// lockRecordingStore records every product row locked inside transactions
type lockRecordingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	locked []int64
}

func (s *lockRecordingStore) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return s.MemoryStore.WithTx(ctx, func(repo store.Repository) error {
		return fn(lockRecordingRepo{Repository: repo, store: s})
	})
}

type lockRecordingRepo struct {
	store.Repository
	store *lockRecordingStore
}

func (r lockRecordingRepo) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	r.store.mu.Lock()
	r.store.locked = append(r.store.locked, id)
	r.store.mu.Unlock()
	return r.Repository.GetProductForUpdate(ctx, id)
}
