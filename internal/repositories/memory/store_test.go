package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

func TestStoreRunInTxRollsBack(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	if err := store.Orders().Save(ctx, domain.Order{ID: 1, OwnerID: 7, Status: domain.OrderStatusPending}); err != nil {
		t.Fatalf("save: %v", err)
	}

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Orders().InsertItem(ctx, domain.LineItem{ID: 1, OrderID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}); err != nil {
			return err
		}
		if _, err := store.Counters().Next(ctx, repositories.CounterOrderItems); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	items, _ := store.Orders().ListItems(ctx, 1)
	if len(items) != 0 {
		t.Fatalf("expected rollback to drop the item, got %+v", items)
	}
	next, err := store.Counters().Next(ctx, repositories.CounterOrderItems)
	if err != nil || next != 1 {
		t.Fatalf("expected counter rollback, got %d (%v)", next, err)
	}
}

func TestStoreRunInTxRollsBackOnPanic(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = store.RunInTx(ctx, func(ctx context.Context) error {
			_ = store.Orders().Save(ctx, domain.Order{ID: 5})
			panic("boom")
		})
	}()

	if _, err := store.Orders().FindByID(ctx, 5); !isNotFound(err) {
		t.Fatalf("expected order to be rolled back, got %v", err)
	}
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	if err := store.Users().Insert(ctx, domain.User{ID: 1, Email: "a@x.io", Active: true}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.Users().Insert(ctx, domain.User{ID: 2, Email: "a@x.io"})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
	// Emails compare case-sensitively.
	if err := store.Users().Insert(ctx, domain.User{ID: 3, Email: "A@x.io"}); err != nil {
		t.Fatalf("insert different case: %v", err)
	}

	got, err := store.Users().FindByEmail(ctx, "a@x.io")
	if err != nil || got.ID != 1 {
		t.Fatalf("find by email: %+v %v", got, err)
	}
	if _, err := store.Users().FindByEmail(ctx, "missing@x.io"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderRepositoryListings(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	for _, order := range []domain.Order{{ID: 3, OwnerID: 1}, {ID: 1, OwnerID: 1}, {ID: 2, OwnerID: 2}} {
		if err := store.Orders().Save(ctx, order); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	all, _ := store.Orders().ListAll(ctx)
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("unexpected order of all orders %+v", all)
	}
	mine, _ := store.Orders().ListByOwner(ctx, 1)
	if len(mine) != 2 || mine[0].ID != 1 || mine[1].ID != 3 {
		t.Fatalf("unexpected owner listing %+v", mine)
	}
	none, _ := store.Orders().ListByOwner(ctx, 9)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil listing, got %#v", none)
	}

	if err := store.Orders().DeleteItem(ctx, 42); !isNotFound(err) {
		t.Fatalf("expected not found deleting missing item, got %v", err)
	}
}

func TestCounterRepositoryConcurrentNext(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	const workers = 32
	seen := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Counters().Next(ctx, repositories.CounterOrders)
			if err != nil {
				t.Errorf("next: %v", err)
			}
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for v := range seen {
		unique[v] = true
	}
	if len(unique) != workers {
		t.Fatalf("expected %d unique ids, got %d", workers, len(unique))
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
