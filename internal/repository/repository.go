// Package repository stores users, products and orders.
//
// Two implementations are provided: MemoryStore, which keeps everything in
// process memory, and SQLStore, backed by MySQL or PostgreSQL. Both assign
// sequential identifiers that are never reused.
package repository

import (
	"context"

	"github.com/tecnokaijin/storefront/internal/models"
)

// Store groups the repositories of one storage backend
type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Orders() OrderRepository
	Close() error
}

// UserRepository persists accounts. Emails are stored normalized and are unique.
type UserRepository interface {
	// Create assigns the next ID to u and stores it.
	// Returns models.ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// ProductRepository persists the catalog
type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id int64) (*models.Product, error)
	// List returns every product ordered by ID
	List(ctx context.Context) ([]models.Product, error)
	// Update loads product id, lets change modify it and stores the result
	// in one atomic step, so stock reserved by a concurrent order is never
	// overwritten with a stale value. An error from change aborts the update.
	Update(ctx context.Context, id int64, change func(p *models.Product) error) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// OrderRepository persists orders
type OrderRepository interface {
	// Create reserves stock for every line and stores the order in one
	// atomic step, assigning its ID and order number. If any line exceeds
	// the current stock nothing is written and a *models.StockError is
	// returned.
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id int64) (*models.Order, error)
	// List returns every order ordered by ID
	List(ctx context.Context) ([]models.Order, error)
	// ListByUser returns the orders of a user, newest first
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	// Transition moves an order from status from to status to. It fails with
	// a *models.TransitionError if the stored status is no longer from.
	// Moving to cancelled returns the reserved stock to the catalog.
	Transition(ctx context.Context, id int64, from, to models.OrderStatus) (*models.Order, error)
	Count(ctx context.Context) (int, error)
}
