package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered customer or staff member. Users are never deleted.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	Admin        bool
	CreatedAt    time.Time
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending is the initial, mutable state.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusFinalized is terminal.
	OrderStatusFinalized OrderStatus = "FINALIZED"
)

// Terminal reports whether no further mutation is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusFinalized
}

// Order is a customer's pizza order. TotalPrice is derived from Items and never set by callers.
type Order struct {
	ID         int64
	OwnerID    int64
	Status     OrderStatus
	TotalPrice decimal.Decimal
	Items      []LineItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineItem is one pizza line within an order.
type LineItem struct {
	ID        int64
	OrderID   int64
	Flavor    string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// Subtotal returns Quantity * UnitPrice.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals the subtotals of items.
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
