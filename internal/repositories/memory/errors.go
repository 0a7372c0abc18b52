package memory

import "fmt"

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

// Error satisfies repositories.RepositoryError for the in-memory backend.
type Error struct {
	op   string
	msg  string
	kind errorKind
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.op, e.msg) }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op string, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...) + " not found", kind: kindNotFound}
}

func conflict(op string, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), kind: kindConflict}
}
