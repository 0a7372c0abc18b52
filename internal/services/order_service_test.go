package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
	"github.com/doug-pr/API-Pizzaria/internal/repositories/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type unavailableError struct{}

func (unavailableError) Error() string       { return "deadline exceeded" }
func (unavailableError) IsNotFound() bool    { return false }
func (unavailableError) IsConflict() bool    { return false }
func (unavailableError) IsUnavailable() bool { return true }

type stubOrderRepo struct {
	repositories.OrderRepository
	findFn func(context.Context, int64) (domain.Order, error)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.findFn(ctx, orderID)
}

var (
	owner    = &Principal{ID: 1, Email: "u1@example.com", Active: true}
	stranger = &Principal{ID: 2, Email: "u2@example.com", Active: true}
	admin    = &Principal{ID: 9, Email: "admin@example.com", Active: true, Admin: true}
	inactive = &Principal{ID: 3, Email: "u3@example.com", Active: false}
)

func newTestOrderService(t *testing.T) (OrderService, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore(nil)
	events := &recordingPublisher{}
	now := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Counters:   store.Counters(),
		UnitOfWork: store,
		Clock:      func() time.Time { return now },
		Events:     events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc, store, events
}

func price(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestOrderServiceLifecycleExample(t *testing.T) {
	svc, _, events := newTestOrderService(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, owner)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != domain.OrderStatusPending || !order.TotalPrice.IsZero() || order.OwnerID != owner.ID {
		t.Fatalf("unexpected new order %+v", order)
	}

	order, err = svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Calabresa", Size: "G", Quantity: 2, UnitPrice: price(t, "35.90")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !order.TotalPrice.Equal(price(t, "71.80")) {
		t.Fatalf("expected total 71.80, got %s", order.TotalPrice)
	}

	order, err = svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Refrigerante", Size: "2L", Quantity: 1, UnitPrice: price(t, "10.00")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !order.TotalPrice.Equal(price(t, "81.80")) {
		t.Fatalf("expected total 81.80, got %s", order.TotalPrice)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}

	order, err = svc.FinalizeOrder(ctx, owner, order.ID)
	if err != nil {
		t.Fatalf("FinalizeOrder: %v", err)
	}
	if order.Status != domain.OrderStatusFinalized || !order.TotalPrice.Equal(price(t, "81.80")) {
		t.Fatalf("unexpected finalized order %+v", order)
	}

	if _, err := svc.RemoveItem(ctx, owner, order.Items[0].ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}

	got, err := svc.GetOrder(ctx, owner, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(got.Items) != 2 || !got.TotalPrice.Equal(price(t, "81.80")) {
		t.Fatalf("terminal order changed: %+v", got)
	}

	want := []string{orderEventCreated, orderEventItemAdded, orderEventItemAdded, orderEventFinalized}
	if gotTypes := events.types(); len(gotTypes) != len(want) {
		t.Fatalf("expected events %v, got %v", want, gotTypes)
	}
}

func TestOrderServiceAddRemoveRoundTrip(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()

	order, _ := svc.CreateOrder(ctx, owner)
	order, err := svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Margherita", Size: "M", Quantity: 3, UnitPrice: price(t, "0.10")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	before := order.TotalPrice

	order, err = svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Portuguesa", Size: "G", Quantity: 7, UnitPrice: price(t, "19.99")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !order.TotalPrice.Equal(domain.SumItems(order.Items)) {
		t.Fatalf("total %s does not match items", order.TotalPrice)
	}

	added := order.Items[len(order.Items)-1]
	order, err = svc.RemoveItem(ctx, owner, added.ID)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if !order.TotalPrice.Equal(before) || !before.Equal(price(t, "0.30")) {
		t.Fatalf("expected total back at %s, got %s", before, order.TotalPrice)
	}

	if _, err := svc.RemoveItem(ctx, owner, added.ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected item not found on second removal, got %v", err)
	}
}

func TestOrderServiceTerminalStatesAreFinal(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()

	for _, first := range []func(context.Context, *Principal, int64) (Order, error){svc.CancelOrder, svc.FinalizeOrder} {
		order, _ := svc.CreateOrder(ctx, owner)
		if _, err := first(ctx, owner, order.ID); err != nil {
			t.Fatalf("first transition: %v", err)
		}
		for i := 0; i < 2; i++ {
			if _, err := svc.CancelOrder(ctx, owner, order.ID); !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("cancel on terminal order: %v", err)
			}
			if _, err := svc.FinalizeOrder(ctx, admin, order.ID); !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("finalize on terminal order: %v", err)
			}
			_, err := svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "x", Size: "y", Quantity: 1})
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("add item on terminal order: %v", err)
			}
		}
	}
}

func TestOrderServiceVisibility(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()

	order, _ := svc.CreateOrder(ctx, owner)
	order, _ = svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Atum", Size: "P", Quantity: 1, UnitPrice: price(t, "20")})

	if _, err := svc.GetOrder(ctx, stranger, order.ID); !errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrForbidden) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, stranger, 999); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for missing order, got %v", err)
	}
	if _, err := svc.CancelOrder(ctx, stranger, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected stranger cancel to look missing, got %v", err)
	}
	if _, err := svc.AddItem(ctx, stranger, AddItemCommand{OrderID: order.ID, Flavor: "a", Size: "b", Quantity: 1}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected stranger add item to look missing, got %v", err)
	}
	if _, err := svc.RemoveItem(ctx, stranger, order.Items[0].ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected stranger remove item to look missing, got %v", err)
	}

	if _, err := svc.GetOrder(ctx, admin, order.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	if _, err := svc.AddItem(ctx, admin, AddItemCommand{OrderID: order.ID, Flavor: "a", Size: "b", Quantity: 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected admin add item to be forbidden, got %v", err)
	}
	if _, err := svc.RemoveItem(ctx, admin, order.Items[0].ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected admin remove item to be forbidden, got %v", err)
	}
}

func TestOrderServiceAdminCancelsForOwner(t *testing.T) {
	svc, _, events := newTestOrderService(t)
	ctx := context.Background()

	order, _ := svc.CreateOrder(ctx, owner)
	if _, err := svc.CancelOrder(ctx, admin, order.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}

	got, err := svc.GetOrder(ctx, owner, order.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	last := events.events[len(events.events)-1]
	if last.Type != orderEventCancelled || last.ActorID != admin.ID || last.PreviousStatus != string(domain.OrderStatusPending) {
		t.Fatalf("unexpected cancel event %+v", last)
	}
}

func TestOrderServiceListings(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()

	mine1, _ := svc.CreateOrder(ctx, owner)
	_, _ = svc.CreateOrder(ctx, stranger)
	mine2, _ := svc.CreateOrder(ctx, owner)

	if _, err := svc.ListOrders(ctx, stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin list, got %v", err)
	}

	all, err := svc.ListOrders(ctx, admin)
	if err != nil || len(all) != 3 {
		t.Fatalf("admin list: %v %+v", err, all)
	}

	mine, err := svc.ListOrdersForPrincipal(ctx, owner)
	if err != nil {
		t.Fatalf("ListOrdersForPrincipal: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != mine1.ID || mine[1].ID != mine2.ID {
		t.Fatalf("unexpected own orders %+v", mine)
	}

	none, err := svc.ListOrdersForPrincipal(ctx, admin)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected admin to own no orders: %v %+v", err, none)
	}
}

func TestOrderServicePrincipalChecks(t *testing.T) {
	svc, store, _ := newTestOrderService(t)
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, inactive); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected user inactive, got %v", err)
	}
	all, _ := store.Orders().ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("expected no order persisted, got %+v", all)
	}
	if _, err := svc.ListOrdersForPrincipal(ctx, inactive); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected user inactive on listing, got %v", err)
	}
}

func TestOrderServiceAddItemValidation(t *testing.T) {
	svc, _, _ := newTestOrderService(t)
	ctx := context.Background()
	order, _ := svc.CreateOrder(ctx, owner)

	cases := map[string]AddItemCommand{
		"zero quantity":  {OrderID: order.ID, Flavor: "a", Size: "b", Quantity: 0, UnitPrice: price(t, "1")},
		"negative price": {OrderID: order.ID, Flavor: "a", Size: "b", Quantity: 1, UnitPrice: price(t, "-0.01")},
		"blank flavor":   {OrderID: order.ID, Flavor: "  <b></b> ", Size: "b", Quantity: 1},
		"blank size":     {OrderID: order.ID, Flavor: "a", Quantity: 1},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, owner, cmd); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	free, err := svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "<i>Brinde</i>", Size: "P", Quantity: 1, UnitPrice: decimal.Zero})
	if err != nil {
		t.Fatalf("zero price should be accepted: %v", err)
	}
	if free.Items[0].Flavor != "Brinde" {
		t.Fatalf("expected sanitized flavor, got %q", free.Items[0].Flavor)
	}
}

func TestOrderServiceStorageUnavailable(t *testing.T) {
	store := memory.NewStore(nil)
	repo := &stubOrderRepo{
		OrderRepository: store.Orders(),
		findFn: func(context.Context, int64) (domain.Order, error) {
			return domain.Order{}, unavailableError{}
		},
	}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Counters: store.Counters(), UnitOfWork: store})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), owner, 1); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOperation(t *testing.T) {
	store := memory.NewStore(nil)
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Counters:   store.Counters(),
		UnitOfWork: store,
		Events:     &recordingPublisher{err: errors.New("pubsub down")},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), owner); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(logged) != 2 || logged[1] != "orders.event_publish_failed" {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without repositories")
	}
}

// failingSaveRepo writes items through to the store but fails every header save.
type failingSaveRepo struct {
	repositories.OrderRepository
}

func (failingSaveRepo) Save(context.Context, domain.Order) error { return unavailableError{} }

func TestOrderServiceItemChangesAreAtomic(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestOrderService(t)
	order, err := svc.CreateOrder(ctx, owner)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	order, err = svc.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Calabresa", Size: "G", Quantity: 2, UnitPrice: price(t, "35.90")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	kept := order.Items[0]

	broken, err := NewOrderService(OrderServiceDeps{
		Orders:     failingSaveRepo{OrderRepository: store.Orders()},
		Counters:   store.Counters(),
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = broken.AddItem(ctx, owner, AddItemCommand{OrderID: order.ID, Flavor: "Portuguesa", Size: "M", Quantity: 1, UnitPrice: price(t, "10.00")})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable on add, got %v", err)
	}
	_, err = broken.RemoveItem(ctx, owner, kept.ID)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable on remove, got %v", err)
	}

	items, err := store.Orders().ListItems(ctx, order.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != kept.ID {
		t.Fatalf("expected only the original item to remain, got %+v", items)
	}
	stored, err := store.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !stored.TotalPrice.Equal(price(t, "71.80")) {
		t.Fatalf("expected stored total 71.80, got %s", stored.TotalPrice)
	}
}
