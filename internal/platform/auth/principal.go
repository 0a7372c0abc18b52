package auth

import "context"

// Principal is the caller identity handed to the order engine.
type Principal struct {
	ID     int64
	Email  string
	Admin  bool
	Active bool
}

type contextKey string

const principalContextKey contextKey = "github.com/doug-pr/API-Pizzaria/internal/platform/auth/principal"

// WithPrincipal stores the principal within the context for downstream handlers.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal previously stored in context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
