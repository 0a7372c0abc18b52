package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
	"github.com/doug-pr/API-Pizzaria/internal/platform/textutil"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

const (
	orderEventCreated     = "order.created"
	orderEventItemAdded   = "order.item.added"
	orderEventItemRemoved = "order.item.removed"
	orderEventCancelled   = "order.cancelled"
	orderEventFinalized   = "order.finalized"

	maxLabelLength = 64
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {domain.OrderStatusCancelled, domain.OrderStatusFinalized},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Counters   repositories.CounterRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, principal *Principal) (Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	var order Order
	err = s.runInTx(ctx, func(ctx context.Context) error {
		id, err := s.counters.Next(ctx, repositories.CounterOrders)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		order = Order{
			ID:         id,
			OwnerID:    p.ID,
			Status:     domain.OrderStatusPending,
			TotalPrice: domain.SumItems(nil),
			Items:      []LineItem{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return mapRepositoryError(s.orders.Save(ctx, order), nil)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.created", map[string]any{"orderID": order.ID, "ownerID": order.OwnerID})
	s.publishEvent(ctx, orderEvent(orderEventCreated, order, p.ID, "", now))
	return order, nil
}

func (s *orderService) AddItem(ctx context.Context, principal *Principal, cmd AddItemCommand) (Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return Order{}, err
	}

	flavor := textutil.SanitizeLabel(cmd.Flavor, maxLabelLength)
	size := textutil.SanitizeLabel(cmd.Size, maxLabelLength)
	switch {
	case cmd.Quantity < 1:
		return Order{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	case cmd.UnitPrice.IsNegative():
		return Order{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	case flavor == "":
		return Order{}, fmt.Errorf("%w: flavor is required", ErrInvalidInput)
	case size == "":
		return Order{}, fmt.Errorf("%w: size is required", ErrInvalidInput)
	}

	now := s.clock()
	var (
		order Order
		item  LineItem
	)
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.loadOwnedPending(ctx, p, cmd.OrderID, ErrOrderNotFound)
		if err != nil {
			return err
		}
		id, err := s.counters.Next(ctx, repositories.CounterOrderItems)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		item = LineItem{
			ID:        id,
			OrderID:   order.ID,
			Flavor:    flavor,
			Size:      size,
			Quantity:  cmd.Quantity,
			UnitPrice: cmd.UnitPrice,
			CreatedAt: now,
		}
		if err := s.orders.InsertItem(ctx, item); err != nil {
			return mapRepositoryError(err, nil)
		}
		order.Items = append(order.Items, item)
		return s.saveWithTotal(ctx, &order, now)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.item_added", map[string]any{
		"orderID": order.ID,
		"itemID":  item.ID,
		"total":   order.TotalPrice.String(),
	})
	event := orderEvent(orderEventItemAdded, order, p.ID, "", now)
	event.ItemID = item.ID
	s.publishEvent(ctx, event)
	return order, nil
}

func (s *orderService) RemoveItem(ctx context.Context, principal *Principal, itemID int64) (Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	var order Order
	err = s.runInTx(ctx, func(ctx context.Context) error {
		item, err := s.orders.FindItem(ctx, itemID)
		if err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}
		order, err = s.loadOwnedPending(ctx, p, item.OrderID, ErrItemNotFound)
		if err != nil {
			return err
		}
		if err := s.orders.DeleteItem(ctx, item.ID); err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}
		order.Items = slices.DeleteFunc(order.Items, func(li LineItem) bool { return li.ID == item.ID })
		return s.saveWithTotal(ctx, &order, now)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.item_removed", map[string]any{
		"orderID": order.ID,
		"itemID":  itemID,
		"total":   order.TotalPrice.String(),
	})
	event := orderEvent(orderEventItemRemoved, order, p.ID, "", now)
	event.ItemID = itemID
	s.publishEvent(ctx, event)
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error) {
	return s.transition(ctx, principal, orderID, domain.OrderStatusCancelled, orderEventCancelled)
}

func (s *orderService) FinalizeOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error) {
	return s.transition(ctx, principal, orderID, domain.OrderStatusFinalized, orderEventFinalized)
}

func (s *orderService) transition(ctx context.Context, principal *Principal, orderID int64, target domain.OrderStatus, eventType string) (Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	var (
		order    Order
		previous domain.OrderStatus
	)
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.loadVisible(ctx, p, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !slices.Contains(orderStateTransitions[order.Status], target) {
			return fmt.Errorf("%w: cannot move order %d from %s to %s", ErrInvalidStateTransition, order.ID, order.Status, target)
		}
		order.Status = target
		order.UpdatedAt = now
		return mapRepositoryError(s.orders.Save(ctx, order), nil)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "orders.status_changed", map[string]any{
		"orderID": order.ID,
		"from":    string(previous),
		"to":      string(target),
		"actorID": p.ID,
	})
	s.publishEvent(ctx, orderEvent(eventType, order, p.ID, previous, now))
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return Order{}, err
	}

	var order Order
	err = s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.loadVisible(ctx, p, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, principal *Principal) ([]Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return nil, err
	}
	if !auth.AllowAdmin(p) {
		return nil, fmt.Errorf("%w: listing all orders requires admin", ErrForbidden)
	}
	return s.list(ctx, s.orders.ListAll)
}

func (s *orderService) ListOrdersForPrincipal(ctx context.Context, principal *Principal) ([]Order, error) {
	p, err := requireActive(principal)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, func(ctx context.Context) ([]Order, error) {
		return s.orders.ListByOwner(ctx, p.ID)
	})
}

func (s *orderService) list(ctx context.Context, query func(context.Context) ([]Order, error)) ([]Order, error) {
	var orders []Order
	err := s.runInTx(ctx, func(ctx context.Context) error {
		found, err := query(ctx)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		orders = make([]Order, 0, len(found))
		for _, order := range found {
			if order.Items, err = s.orders.ListItems(ctx, order.ID); err != nil {
				return mapRepositoryError(err, nil)
			}
			orders = append(orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// loadVisible loads the order with its items when the principal owns it or is an admin.
// Orders the principal may not see are reported as missing.
func (s *orderService) loadVisible(ctx context.Context, p Principal, orderID int64) (Order, error) {
	order, err := s.loadOrder(ctx, orderID, ErrOrderNotFound)
	if err != nil {
		return Order{}, err
	}
	if !auth.AllowSelfOrAdmin(p, order.OwnerID) {
		return Order{}, fmt.Errorf("%w: order %d", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// loadOwnedPending loads an order for item mutation. Only the owner may change items; an admin
// who can see the order gets ErrForbidden, anyone else gets notFound.
func (s *orderService) loadOwnedPending(ctx context.Context, p Principal, orderID int64, notFound error) (Order, error) {
	order, err := s.loadOrder(ctx, orderID, notFound)
	if err != nil {
		return Order{}, err
	}
	if !auth.AllowSelf(p, order.OwnerID) {
		if p.Admin {
			return Order{}, fmt.Errorf("%w: only the owner may change items of order %d", ErrForbidden, orderID)
		}
		return Order{}, fmt.Errorf("%w: order %d", notFound, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		return Order{}, fmt.Errorf("%w: order %d is %s", ErrInvalidStateTransition, order.ID, order.Status)
	}
	return order, nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID int64, notFound error) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, notFound)
	}
	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, nil)
	}
	order.Items = items
	return order, nil
}

// saveWithTotal re-derives the total from the full item set before persisting.
func (s *orderService) saveWithTotal(ctx context.Context, order *Order, now time.Time) error {
	order.TotalPrice = domain.SumItems(order.Items)
	order.UpdatedAt = now
	return mapRepositoryError(s.orders.Save(ctx, *order), nil)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if err := s.unitOfWork.RunInTx(ctx, fn); err != nil {
		return mapRepositoryError(err, nil)
	}
	return nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"type":    event.Type,
			"orderID": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func orderEvent(eventType string, order Order, actorID int64, previous domain.OrderStatus, now time.Time) OrderEvent {
	return OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		OwnerID:        order.OwnerID,
		ActorID:        actorID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		TotalPrice:     order.TotalPrice.String(),
		OccurredAt:     now,
	}
}

// requireActive fails closed when no principal was resolved.
func requireActive(principal *Principal) (Principal, error) {
	if principal == nil {
		return Principal{}, ErrUnauthenticated
	}
	if !principal.Active {
		return Principal{}, fmt.Errorf("%w: user %d", ErrUserInactive, principal.ID)
	}
	return *principal, nil
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
