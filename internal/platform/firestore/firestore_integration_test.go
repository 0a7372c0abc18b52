//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/doug-pr/API-Pizzaria/internal/platform/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/platform/firestore/firestoretest"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestCollectionJoinsTransaction(t *testing.T) {
	provider := pfirestore.NewProvider(firestoretest.Start(t, "collection-test"))
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	samples := pfirestore.NewCollection[sampleEntity](provider, "samples")
	if err := samples.Set(ctx, "s1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		got, err := samples.Get(ctx, "s1")
		if err != nil {
			return err
		}
		got.Count++
		return samples.Set(ctx, "s1", got)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	got, err := samples.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("expected count 2, got %d", got.Count)
	}

	errRollback := errors.New("rollback")
	err = provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := samples.Set(ctx, "s1", sampleEntity{Name: "beta", Count: 99}); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if got, _ := samples.Get(ctx, "s1"); got.Count != 2 {
		t.Fatalf("expected rolled back write, got %+v", got)
	}

	_, err = samples.Get(ctx, "missing")
	var classified interface{ IsNotFound() bool }
	if !errors.As(err, &classified) || !classified.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := samples.Create(ctx, "s1", sampleEntity{}); err == nil {
		t.Fatalf("expected create on existing document to fail")
	}
}
