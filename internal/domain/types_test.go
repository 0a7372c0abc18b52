package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSumItemsIsExact(t *testing.T) {
	items := []LineItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("35.90")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
	}
	if got := SumItems(items[:1]); !got.Equal(decimal.RequireFromString("71.80")) {
		t.Fatalf("expected 71.80, got %s", got)
	}
	if got := SumItems(items); !got.Equal(decimal.RequireFromString("81.80")) {
		t.Fatalf("expected 81.80, got %s", got)
	}
	if got := SumItems(nil); !got.IsZero() {
		t.Fatalf("expected zero for no items, got %s", got)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if OrderStatusPending.Terminal() {
		t.Fatalf("pending must not be terminal")
	}
	if !OrderStatusCancelled.Terminal() || !OrderStatusFinalized.Terminal() {
		t.Fatalf("cancelled and finalized must be terminal")
	}
}
