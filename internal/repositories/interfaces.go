package repositories

import (
	"context"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
)

// Registry exposes the repositories of one storage backend.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository calls into one all-or-nothing boundary. Implementations
// serialise read-modify-write cycles on the same order.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository stores user accounts. Emails are unique and compared case-sensitively.
type UserRepository interface {
	// Insert persists a new user and fails with a conflict error when the email is taken.
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID int64) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}

// OrderRepository stores orders and their line items.
type OrderRepository interface {
	// FindByID loads the order header without items.
	FindByID(ctx context.Context, orderID int64) (domain.Order, error)
	// ListItems returns the items of orderID ordered by item id.
	ListItems(ctx context.Context, orderID int64) ([]domain.LineItem, error)
	// Save inserts or replaces the order header.
	Save(ctx context.Context, order domain.Order) error
	FindItem(ctx context.Context, itemID int64) (domain.LineItem, error)
	InsertItem(ctx context.Context, item domain.LineItem) error
	DeleteItem(ctx context.Context, itemID int64) error
	// ListAll returns every order header ordered by id.
	ListAll(ctx context.Context) ([]domain.Order, error)
	// ListByOwner returns the order headers owned by ownerID ordered by id.
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Order, error)
}

// CounterRepository hands out monotonically increasing numeric identifiers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}

// Counter names used for identifier allocation.
const (
	CounterUsers      = "users"
	CounterOrders     = "orders"
	CounterOrderItems = "order_items"
)

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
