// Package memory keeps repositories in process memory. It backs local development and tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

type txKey struct{}

type state struct {
	users    map[int64]domain.User
	emails   map[string]int64
	orders   map[int64]domain.Order
	items    map[int64]domain.LineItem
	counters map[string]int64
}

func (s state) clone() state {
	return state{
		users:    maps.Clone(s.users),
		emails:   maps.Clone(s.emails),
		orders:   maps.Clone(s.orders),
		items:    maps.Clone(s.items),
		counters: maps.Clone(s.counters),
	}
}

// Store is an in-memory repositories.Registry. Transactions are serialised by a single
// lock and rolled back by restoring a snapshot taken when they began.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	data   state
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// NewStore returns an empty store. health may be nil.
func NewStore(health repositories.HealthRepository) *Store {
	return &Store{
		data: state{
			users:    map[int64]domain.User{},
			emails:   map[string]int64{},
			orders:   map[int64]domain.Order{},
			items:    map[int64]domain.LineItem{},
			counters: map[string]int64{},
		},
		health: health,
	}
}

func (s *Store) Users() repositories.UserRepository       { return userRepository{s} }
func (s *Store) Orders() repositories.OrderRepository     { return orderRepository{s} }
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{s} }
func (s *Store) Health() repositories.HealthRepository    { return s.health }

func (s *Store) Close(context.Context) error { return nil }

// RunInTx runs fn exclusively; a returned error or panic discards its writes.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.data = snapshot
			s.mu.Unlock()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		return err
	}
	committed = true
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write applies fn under the data lock, as its own transaction when ctx has none.
func (s *Store) write(ctx context.Context, fn func(*state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *Store) read(fn func(*state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

type userRepository struct{ s *Store }

func (r userRepository) Insert(ctx context.Context, user domain.User) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.emails[user.Email]; ok {
			return conflict("users.insert", "email %q already registered", user.Email)
		}
		if _, ok := st.users[user.ID]; ok {
			return conflict("users.insert", "user %d exists", user.ID)
		}
		st.users[user.ID] = user
		st.emails[user.Email] = user.ID
		return nil
	})
}

func (r userRepository) FindByID(_ context.Context, userID int64) (domain.User, error) {
	var (
		user domain.User
		ok   bool
	)
	r.s.read(func(st *state) { user, ok = st.users[userID] })
	if !ok {
		return domain.User{}, notFound("users.get", "user %d", userID)
	}
	return user, nil
}

func (r userRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	var (
		id int64
		ok bool
	)
	r.s.read(func(st *state) { id, ok = st.emails[email] })
	if !ok {
		return domain.User{}, notFound("users.get", "email %q", email)
	}
	return r.FindByID(ctx, id)
}

type orderRepository struct{ s *Store }

func (r orderRepository) FindByID(_ context.Context, orderID int64) (domain.Order, error) {
	var (
		order domain.Order
		ok    bool
	)
	r.s.read(func(st *state) { order, ok = st.orders[orderID] })
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %d", orderID)
	}
	order.Items = nil
	return order, nil
}

func (r orderRepository) ListItems(_ context.Context, orderID int64) ([]domain.LineItem, error) {
	var items []domain.LineItem
	r.s.read(func(st *state) {
		for _, item := range st.items {
			if item.OrderID == orderID {
				items = append(items, item)
			}
		}
	})
	slices.SortFunc(items, func(a, b domain.LineItem) int { return cmp.Compare(a.ID, b.ID) })
	return items, nil
}

func (r orderRepository) Save(ctx context.Context, order domain.Order) error {
	order.Items = nil
	return r.s.write(ctx, func(st *state) error {
		st.orders[order.ID] = order
		return nil
	})
}

func (r orderRepository) FindItem(_ context.Context, itemID int64) (domain.LineItem, error) {
	var (
		item domain.LineItem
		ok   bool
	)
	r.s.read(func(st *state) { item, ok = st.items[itemID] })
	if !ok {
		return domain.LineItem{}, notFound("order_items.get", "item %d", itemID)
	}
	return item, nil
}

func (r orderRepository) InsertItem(ctx context.Context, item domain.LineItem) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.items[item.ID]; ok {
			return conflict("order_items.insert", "item %d exists", item.ID)
		}
		st.items[item.ID] = item
		return nil
	})
}

func (r orderRepository) DeleteItem(ctx context.Context, itemID int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.items[itemID]; !ok {
			return notFound("order_items.delete", "item %d", itemID)
		}
		delete(st.items, itemID)
		return nil
	})
}

func (r orderRepository) ListAll(context.Context) ([]domain.Order, error) {
	return r.list(func(domain.Order) bool { return true }), nil
}

func (r orderRepository) ListByOwner(_ context.Context, ownerID int64) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.OwnerID == ownerID }), nil
}

func (r orderRepository) list(match func(domain.Order) bool) []domain.Order {
	orders := []domain.Order{}
	r.s.read(func(st *state) {
		for _, order := range st.orders {
			if match(order) {
				orders = append(orders, order)
			}
		}
	})
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return orders
}

type counterRepository struct{ s *Store }

func (r counterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	var next int64
	err := r.s.write(ctx, func(st *state) error {
		st.counters[counterID]++
		next = st.counters[counterID]
		return nil
	})
	return next, err
}
