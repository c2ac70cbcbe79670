package service

import (
	"context"
	"sync"
	"testing"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    store.DataStore
	mem      *store.MemoryStore
	cache    *fakeCache
	events   *fakePublisher
	orders   *OrderService
	products *ProductService
	users    *UserService
	user     *models.User
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, store.NewMemoryStore(), "")
}

func newFixtureWithStore(t *testing.T, mem *store.MemoryStore, failOn string) *fixture {
	t.Helper()

	var ds store.DataStore = mem
	if failOn != "" {
		ds = &failingStore{MemoryStore: mem, failOn: failOn}
	}

	f := &fixture{store: ds, mem: mem, cache: newFakeCache(), events: &fakePublisher{}}
	f.orders = NewOrderService(ds, f.cache, newFakeIdempotency(), f.events)
	f.products = NewProductService(ds, f.cache, f.events, 0)
	f.users = NewUserService(ds, f.orders)

	user, err := mem.GetUserByEmail(context.Background(), "picker@example.com")
	if err != nil {
		user = &models.User{Username: "picker", Email: "picker@example.com", PasswordHash: "x"}
		require.NoError(t, mem.CreateUser(context.Background(), user))
	}
	f.user = user
	return f
}

func (f *fixture) newProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: "widget", Price: decimal.NewFromFloat(9.99), Stock: stock}
	require.NoError(t, f.mem.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.mem.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) create(t *testing.T, productID int64, qty int) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(),
		&CreateOrderRequest{UserID: f.user.ID, ProductID: productID, Quantity: qty}, "")
	require.NoError(t, err)
	return order
}

func statusOf(s string) *string { return &s }

func TestCreateOrdersDeductStock(t *testing.T) {
	f := newFixture(t)
	p := f.newProduct(t, 20)

	for _, q := range []int{1, 4, 7} {
		f.create(t, p.ID, q)
	}

	assert.Equal(t, 20-12, f.stock(t, p.ID))
	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeOrderCreated, models.EventTypeOrderCreated},
		f.events.orderEventTypes())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.newProduct(t, 3)

	_, err := f.orders.CreateOrder(context.Background(),
		&CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 4}, "")

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, f.stock(t, p.ID))
	assert.Empty(t, f.events.orderEventTypes())
}

func TestCreateOrderMissingReferences(t *testing.T) {
	f := newFixture(t)
	p := f.newProduct(t, 3)
	ctx := context.Background()

	_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: 999, ProductID: p.ID, Quantity: 1}, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "User not found")

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: f.user.ID, ProductID: 999, Quantity: 1}, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Product not found")
}

func TestCancelCreateScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)

	order := f.create(t, p.ID, 4)
	assert.Equal(t, 6, f.stock(t, p.ID))
	assert.Equal(t, models.OrderStatusCreated, order.Status)

	updated, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("CANCELLED")})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	f.create(t, p.ID, 10)
	assert.Equal(t, 0, f.stock(t, p.ID))

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 1}, "")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestQuantityChangeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 8)

	order := f.create(t, p.ID, 3)
	require.Equal(t, 5, f.stock(t, p.ID))

	_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Quantity: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, p.ID))

	updated, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Quantity: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestQuantityIncreaseBeyondStockMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 5)
	order := f.create(t, p.ID, 4)

	_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Quantity: intPtr(6), Status: statusOf("shipped")})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, models.OrderStatusCreated, got.Status)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestCancelTwiceReturnsStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)
	order := f.create(t, p.ID, 4)

	_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("SHIPPED")})
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, p.ID))

	for i := 0; i < 2; i++ {
		_, err = f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("cancelled")})
		require.NoError(t, err)
		assert.Equal(t, 10, f.stock(t, p.ID))
	}
}

func TestTerminalOrdersCannotBeRevived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)
	order := f.create(t, p.ID, 4)

	_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("DELIVERED")})
	require.NoError(t, err)
	assert.Equal(t, 6, f.stock(t, p.ID))

	_, err = f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("CANCELLED")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestUpdateInvalidStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)
	order := f.create(t, p.ID, 4)

	_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("SHPPED")})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "Allowed")

	got, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, got.Status)
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestUpdateRequiresAField(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.UpdateOrder(context.Background(), 1, &UpdateOrderRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateAndDeleteMissingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.UpdateOrder(ctx, 42, &UpdateOrderRequest{Status: statusOf("SHIPPED")})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.orders.DeleteOrder(ctx, 42), ErrNotFound)

	_, err = f.orders.GetOrder(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOrderStockDeltas(t *testing.T) {
	tests := []struct {
		status    string
		wantStock int
	}{
		{"CREATED", 10},
		{"SHIPPED", 10},
		{"DELIVERED", 6},
		{"CANCELLED", 10},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			p := f.newProduct(t, 10)
			order := f.create(t, p.ID, 4)

			if tt.status != "CREATED" {
				_, err := f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf(tt.status)})
				require.NoError(t, err)
			}
			before := f.stock(t, p.ID)

			require.NoError(t, f.orders.DeleteOrder(ctx, order.ID))
			assert.Equal(t, tt.wantStock, f.stock(t, p.ID))

			if tt.status == "CANCELLED" || tt.status == "DELIVERED" {
				assert.Equal(t, before, f.stock(t, p.ID))
			}

			_, err := f.orders.GetOrder(ctx, order.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	for _, op := range []string{"create", "update", "delete"} {
		t.Run(op, func(t *testing.T) {
			mem := store.NewMemoryStore()
			healthy := newFixtureWithStore(t, mem, "")
			p := healthy.newProduct(t, 10)
			order := healthy.create(t, p.ID, 4)

			f := newFixtureWithStore(t, mem, op)
			ctx := context.Background()

			var err error
			switch op {
			case "create":
				_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 2}, "")
			case "update":
				_, err = f.orders.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{Status: statusOf("CANCELLED")})
			case "delete":
				err = f.orders.DeleteOrder(ctx, order.ID)
			}

			assert.ErrorIs(t, err, ErrPersistence)
			assert.ErrorIs(t, err, errDiskFull)
			assert.Equal(t, 6, f.stock(t, p.ID))

			got, err := mem.GetOrderByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusCreated, got.Status)
		})
	}
}

func TestIdempotentCreateReturnsFirstOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)
	req := &CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 3}

	first, err := f.orders.CreateOrder(ctx, req, "key-1")
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(ctx, req, "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, f.stock(t, p.ID))
}

func TestIdempotentCreateRechecksKeyAfterLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)
	req := &CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 3}

	keys := &interleavingIdempotency{fakeIdempotency: newFakeIdempotency()}
	orders := NewOrderService(f.store, f.cache, keys, f.events)

	var first *models.Order
	keys.hook = func() {
		var err error
		first, err = orders.CreateOrder(ctx, req, "k1")
		require.NoError(t, err)
	}

	second, err := orders.CreateOrder(ctx, req, "k1")
	require.NoError(t, err)
	require.NotNil(t, first)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, f.stock(t, p.ID))
	assert.Empty(t, keys.locks)
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.newProduct(t, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(context.Background(),
				&CreateOrderRequest{UserID: f.user.ID, ProductID: p.ID, Quantity: 1}, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestOrderMutationsInvalidateProductCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.newProduct(t, 10)

	_, err := f.products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	_, hit, _ := f.cache.GetProduct(ctx, p.ID)
	require.True(t, hit)

	f.create(t, p.ID, 2)

	_, hit, _ = f.cache.GetProduct(ctx, p.ID)
	assert.False(t, hit)

	got, err := f.products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
}
