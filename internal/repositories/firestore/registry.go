package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/doug-pr/API-Pizzaria/internal/platform/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

// Registry wires the Firestore repositories around one provider.
type Registry struct {
	provider *pfirestore.Provider
	users    *UserRepository
	orders   *OrderRepository
	counters *CounterRepository
	health   repositories.HealthRepository
	txOpts   []pfirestore.TxOption
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository. health may be nil.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository, txOpts ...pfirestore.TxOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		users:    users,
		orders:   orders,
		counters: counters,
		health:   health,
		txOpts:   txOpts,
	}, nil
}

func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx runs fn inside one Firestore transaction. fn must read before it writes.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	}, r.txOpts...)
}

// Close releases the Firestore client.
func (r *Registry) Close(context.Context) error {
	return r.provider.Close()
}
