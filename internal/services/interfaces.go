package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	LineItem           = domain.LineItem
	User               = domain.User
	Principal          = auth.Principal
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService is the order lifecycle engine. Every operation takes the calling principal;
// nil means the caller is unauthenticated.
type OrderService interface {
	CreateOrder(ctx context.Context, principal *Principal) (Order, error)
	AddItem(ctx context.Context, principal *Principal, cmd AddItemCommand) (Order, error)
	RemoveItem(ctx context.Context, principal *Principal, itemID int64) (Order, error)
	CancelOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error)
	FinalizeOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error)
	GetOrder(ctx context.Context, principal *Principal, orderID int64) (Order, error)
	// ListOrders returns every order and is restricted to admins.
	ListOrders(ctx context.Context, principal *Principal) ([]Order, error)
	ListOrdersForPrincipal(ctx context.Context, principal *Principal) ([]Order, error)
}

// AddItemCommand describes a pizza line to append to a pending order.
type AddItemCommand struct {
	OrderID   int64
	Flavor    string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// AuthService owns user accounts and token issuance.
type AuthService interface {
	Register(ctx context.Context, cmd RegisterCommand) (User, error)
	Login(ctx context.Context, cmd LoginCommand) (auth.TokenPair, error)
	// LoginAccessOnly authenticates like Login but issues only an access token.
	LoginAccessOnly(ctx context.Context, cmd LoginCommand) (AccessToken, error)
	Refresh(ctx context.Context, refreshToken string) (AccessToken, error)
	LoadPrincipal(ctx context.Context, userID int64) (Principal, error)
}

// RegisterCommand carries the fields of a new account.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
}

// LoginCommand carries credentials.
type LoginCommand struct {
	Email    string
	Password string
}

// AccessToken is a signed access token and its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order events.
type OrderEvent struct {
	Type           string
	OrderID        int64
	OwnerID        int64
	ActorID        int64
	ItemID         int64
	PreviousStatus string
	CurrentStatus  string
	TotalPrice     string
	OccurredAt     time.Time
}
