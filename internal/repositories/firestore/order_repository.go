package firestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	pfirestore "github.com/doug-pr/API-Pizzaria/internal/platform/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "order_items"
)

// Prices are stored as decimal strings; Firestore has no exact decimal type.
type orderDocument struct {
	ID         int64     `firestore:"id"`
	OwnerID    int64     `firestore:"ownerId"`
	Status     string    `firestore:"status"`
	TotalPrice string    `firestore:"totalPrice"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID        int64     `firestore:"id"`
	OrderID   int64     `firestore:"orderId"`
	Flavor    string    `firestore:"flavor"`
	Size      string    `firestore:"size"`
	Quantity  int64     `firestore:"quantity"`
	UnitPrice string    `firestore:"unitPrice"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository persists order headers in "orders" and line items in "order_items".
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
	items  *pfirestore.Collection[orderItemDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		items:  pfirestore.NewCollection[orderItemDocument](provider, orderItemsCollection),
	}, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strconv.FormatInt(orderID, 10))
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc)
}

func (r *OrderRepository) ListItems(ctx context.Context, orderID int64) ([]domain.LineItem, error) {
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.LineItem, 0, len(docs))
	for _, doc := range docs {
		item, err := toDomainItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.LineItem) int { return cmp.Compare(a.ID, b.ID) })
	return items, nil
}

func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	if order.ID <= 0 {
		return errors.New("order id is required")
	}
	return r.orders.Set(ctx, strconv.FormatInt(order.ID, 10), fromDomainOrder(order))
}

func (r *OrderRepository) FindItem(ctx context.Context, itemID int64) (domain.LineItem, error) {
	doc, err := r.items.Get(ctx, strconv.FormatInt(itemID, 10))
	if err != nil {
		return domain.LineItem{}, err
	}
	return toDomainItem(doc)
}

func (r *OrderRepository) InsertItem(ctx context.Context, item domain.LineItem) error {
	if item.ID <= 0 {
		return errors.New("item id is required")
	}
	return r.items.Create(ctx, strconv.FormatInt(item.ID, 10), fromDomainItem(item))
}

func (r *OrderRepository) DeleteItem(ctx context.Context, itemID int64) error {
	return r.items.Delete(ctx, strconv.FormatInt(itemID, 10))
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("id", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return toDomainOrders(docs)
}

func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Order, error) {
	// Sorted in memory to avoid a composite index on ownerId+id.
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID)
	})
	if err != nil {
		return nil, err
	}
	orders, err := toDomainOrders(docs)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return orders, nil
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		ID:         order.ID,
		OwnerID:    order.OwnerID,
		Status:     string(order.Status),
		TotalPrice: order.TotalPrice.String(),
		CreatedAt:  order.CreatedAt.UTC(),
		UpdatedAt:  order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(doc orderDocument) (domain.Order, error) {
	total, err := decimal.NewFromString(doc.TotalPrice)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: decode total of %d: %w", doc.ID, err)
	}
	return domain.Order{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Status:     domain.OrderStatus(doc.Status),
		TotalPrice: total,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

func toDomainOrders(docs []orderDocument) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toDomainOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func fromDomainItem(item domain.LineItem) orderItemDocument {
	return orderItemDocument{
		ID:        item.ID,
		OrderID:   item.OrderID,
		Flavor:    item.Flavor,
		Size:      item.Size,
		Quantity:  int64(item.Quantity),
		UnitPrice: item.UnitPrice.String(),
		CreatedAt: item.CreatedAt.UTC(),
	}
}

func toDomainItem(doc orderItemDocument) (domain.LineItem, error) {
	price, err := decimal.NewFromString(doc.UnitPrice)
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("order_items: decode price of %d: %w", doc.ID, err)
	}
	return domain.LineItem{
		ID:        doc.ID,
		OrderID:   doc.OrderID,
		Flavor:    doc.Flavor,
		Size:      doc.Size,
		Quantity:  int(doc.Quantity),
		UnitPrice: price,
		CreatedAt: doc.CreatedAt,
	}, nil
}
