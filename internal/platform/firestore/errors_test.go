package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", err: status.Error(codes.NotFound, "x"), notFound: true},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "x"), conflict: true},
		{name: "aborted", err: status.Error(codes.Aborted, "x"), conflict: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "x"), unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "other", err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var e *Error
			if !errors.As(WrapError("orders.get", tc.err), &e) {
				t.Fatalf("expected *Error")
			}
			if e.IsNotFound() != tc.notFound || e.IsConflict() != tc.conflict || e.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification notFound=%v conflict=%v unavailable=%v", e.IsNotFound(), e.IsConflict(), e.IsUnavailable())
			}
			if !errors.Is(e, tc.err) {
				t.Fatalf("expected wrapped error to be preserved")
			}
		})
	}

	if WrapError("noop", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	inner := NotFound("users.by_email", "user")
	if got := WrapError("transaction", inner); got != inner {
		t.Fatalf("expected classified errors to pass through unchanged")
	}
}
