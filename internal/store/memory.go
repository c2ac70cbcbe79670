package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"warehouse-service/internal/models"
)

// MemoryStore is an in-process DataStore. Transactions are serialized and run
// against a copy of the data that replaces the live copy only on commit.
type MemoryStore struct {
	memRepo
	mu   sync.Mutex
	data *memData
}

var _ DataStore = (*MemoryStore)(nil)

type memData struct {
	users    map[int64]models.User
	products map[int64]models.Product
	orders   map[int64]models.Order

	nextUserID    int64
	nextProductID int64
	nextOrderID   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: &memData{
			users:    map[int64]models.User{},
			products: map[int64]models.Product{},
			orders:   map[int64]models.Order{},
		},
	}
	s.memRepo = memRepo{store: s}
	return s
}

func (d *memData) clone() *memData {
	c := *d
	c.users = make(map[int64]models.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = v
	}
	c.products = make(map[int64]models.Product, len(d.products))
	for k, v := range d.products {
		c.products[k] = v
	}
	c.orders = make(map[int64]models.Order, len(d.orders))
	for k, v := range d.orders {
		c.orders[k] = v
	}
	return &c
}

// WithTx runs fn against a private copy and publishes it if fn succeeds
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Repository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.data.clone()
	if err := fn(&memRepo{store: s, tx: tx}); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// memRepo operates on the transaction copy when tx is set, otherwise on the
// live data under the store lock.
type memRepo struct {
	store *MemoryStore
	tx    *memData
}

func (r *memRepo) with(ctx context.Context, fn func(d *memData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.data)
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (r *memRepo) CreateUser(ctx context.Context, user *models.User) error {
	return r.with(ctx, func(d *memData) error {
		for _, u := range d.users {
			if u.Username == user.Username || u.Email == user.Email {
				return fmt.Errorf("%w: users", ErrUniqueViolation)
			}
		}
		d.nextUserID++
		now := time.Now().UTC()
		user.ID, user.CreatedAt, user.UpdatedAt = d.nextUserID, now, now
		d.users[user.ID] = *user
		return nil
	})
}

func (r *memRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var out models.User
	err := r.with(ctx, func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out models.User
	err := r.with(ctx, func(d *memData) error {
		for _, u := range d.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memRepo) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	var out []models.User
	err := r.with(ctx, func(d *memData) error {
		all := make([]models.User, 0, len(d.users))
		for _, u := range d.users {
			all = append(all, u)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		out = page(all, offset, limit)
		return nil
	})
	return out, err
}

func (r *memRepo) UpdateUser(ctx context.Context, user *models.User) error {
	return r.with(ctx, func(d *memData) error {
		current, ok := d.users[user.ID]
		if !ok {
			return ErrNotFound
		}
		for id, u := range d.users {
			if id != user.ID && (u.Username == user.Username || u.Email == user.Email) {
				return fmt.Errorf("%w: users", ErrUniqueViolation)
			}
		}
		current.Username, current.Email = user.Username, user.Email
		current.UpdatedAt = time.Now().UTC()
		user.UpdatedAt = current.UpdatedAt
		d.users[user.ID] = current
		return nil
	})
}

func (r *memRepo) DeleteUser(ctx context.Context, id int64) error {
	return r.with(ctx, func(d *memData) error {
		if _, ok := d.users[id]; !ok {
			return ErrNotFound
		}
		for _, o := range d.orders {
			if o.UserID == id {
				return fmt.Errorf("%w: orders_user_id_fkey", ErrForeignKeyViolation)
			}
		}
		delete(d.users, id)
		return nil
	})
}

func (r *memRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.with(ctx, func(d *memData) error {
		d.nextProductID++
		now := time.Now().UTC()
		product.ID, product.CreatedAt, product.UpdatedAt = d.nextProductID, now, now
		d.products[product.ID] = *product
		return nil
	})
}

func (r *memRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var out models.Product
	err := r.with(ctx, func(d *memData) error {
		p, ok := d.products[id]
		if !ok {
			return ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProductForUpdate needs no extra locking: transactions are already serialized.
func (r *memRepo) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	return r.GetProductByID(ctx, id)
}

func (r *memRepo) ListProducts(ctx context.Context, offset, limit int) ([]models.Product, error) {
	var out []models.Product
	err := r.with(ctx, func(d *memData) error {
		all := make([]models.Product, 0, len(d.products))
		for _, p := range d.products {
			all = append(all, p)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		out = page(all, offset, limit)
		return nil
	})
	return out, err
}

func (r *memRepo) UpdateProduct(ctx context.Context, product *models.Product) error {
	return r.with(ctx, func(d *memData) error {
		current, ok := d.products[product.ID]
		if !ok {
			return ErrNotFound
		}
		if product.Stock < 0 {
			return fmt.Errorf("stock check violated for product %d", product.ID)
		}
		current.Name, current.Price, current.Stock = product.Name, product.Price, product.Stock
		current.UpdatedAt = time.Now().UTC()
		product.UpdatedAt = current.UpdatedAt
		d.products[product.ID] = current
		return nil
	})
}

func (r *memRepo) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	return r.with(ctx, func(d *memData) error {
		current, ok := d.products[id]
		if !ok {
			return ErrNotFound
		}
		if stock < 0 {
			return fmt.Errorf("stock check violated for product %d", id)
		}
		current.Stock = stock
		current.UpdatedAt = time.Now().UTC()
		d.products[id] = current
		return nil
	})
}

func (r *memRepo) DeleteProduct(ctx context.Context, id int64) error {
	return r.with(ctx, func(d *memData) error {
		if _, ok := d.products[id]; !ok {
			return ErrNotFound
		}
		for _, o := range d.orders {
			if o.ProductID == id {
				return fmt.Errorf("%w: orders_product_id_fkey", ErrForeignKeyViolation)
			}
		}
		delete(d.products, id)
		return nil
	})
}

func (r *memRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.with(ctx, func(d *memData) error {
		if _, ok := d.users[order.UserID]; !ok {
			return fmt.Errorf("%w: orders_user_id_fkey", ErrForeignKeyViolation)
		}
		if _, ok := d.products[order.ProductID]; !ok {
			return fmt.Errorf("%w: orders_product_id_fkey", ErrForeignKeyViolation)
		}
		d.nextOrderID++
		now := time.Now().UTC()
		order.ID, order.CreatedAt, order.UpdatedAt = d.nextOrderID, now, now
		d.orders[order.ID] = *order
		return nil
	})
}

func (r *memRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	err := r.with(ctx, func(d *memData) error {
		o, ok := d.orders[id]
		if !ok {
			return ErrNotFound
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memRepo) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrderByID(ctx, id)
}

func (r *memRepo) ListOrdersByUserForUpdate(ctx context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	err := r.with(ctx, func(d *memData) error {
		for _, o := range d.orders {
			if o.UserID == userID {
				out = append(out, o)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *memRepo) CountOpenOrdersByProduct(ctx context.Context, productID int64) (int, error) {
	var n int
	err := r.with(ctx, func(d *memData) error {
		for _, o := range d.orders {
			if o.ProductID == productID && o.HoldsStock() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memRepo) UpdateOrder(ctx context.Context, order *models.Order) error {
	return r.with(ctx, func(d *memData) error {
		current, ok := d.orders[order.ID]
		if !ok {
			return ErrNotFound
		}
		current.Quantity, current.Status = order.Quantity, order.Status
		current.UpdatedAt = time.Now().UTC()
		order.UpdatedAt = current.UpdatedAt
		d.orders[order.ID] = current
		return nil
	})
}

func (r *memRepo) DeleteOrder(ctx context.Context, id int64) error {
	return r.with(ctx, func(d *memData) error {
		if _, ok := d.orders[id]; !ok {
			return ErrNotFound
		}
		delete(d.orders, id)
		return nil
	})
}
