package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies Firestore failures for the repositories.RepositoryError contract.
type Error struct {
	op   string
	err  error
	kind errorKind
}

type errorKind int

const (
	kindOther errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports a precondition or contention failure.
func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a transient backend failure the caller may retry.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// WrapError annotates err with repository semantics derived from its gRPC status.
// Deadline and cancellation surface as unavailable so callers see a retryable failure.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		e.kind = kindUnavailable
	default:
		switch status.Code(err) {
		case codes.NotFound:
			e.kind = kindNotFound
		case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
			e.kind = kindConflict
		case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded, codes.Canceled:
			e.kind = kindUnavailable
		}
	}
	return e
}

// NotFound builds a not-found error for documents absent from a query result.
func NotFound(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s not found", what), kind: kindNotFound}
}

// Conflict builds a conflict error such as a violated uniqueness index.
func Conflict(op, what string) error {
	return &Error{op: op, err: errors.New(what), kind: kindConflict}
}
