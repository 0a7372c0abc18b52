package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doug-pr/API-Pizzaria/internal/platform/httpx"
	"github.com/doug-pr/API-Pizzaria/internal/platform/requestctx"
)

const defaultLoadTimeout = 5 * time.Second

// ErrPrincipalNotFound is returned by loaders when the token subject no longer resolves to a user.
var ErrPrincipalNotFound = errors.New("auth: principal not found")

// AccessTokenParser validates access tokens.
type AccessTokenParser interface {
	ParseAccess(token string) (Claims, error)
}

// PrincipalLoader resolves the current state of a user referenced by a token.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (Principal, error)
}

// PrincipalLoaderFunc adapts a function to PrincipalLoader.
type PrincipalLoaderFunc func(ctx context.Context, userID int64) (Principal, error)

// LoadPrincipal implements PrincipalLoader.
func (f PrincipalLoaderFunc) LoadPrincipal(ctx context.Context, userID int64) (Principal, error) {
	return f(ctx, userID)
}

// Authenticator turns bearer access tokens into a Principal on the request context.
type Authenticator struct {
	tokens  AccessTokenParser
	loader  PrincipalLoader
	timeout time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithLoadTimeout bounds the principal lookup.
func WithLoadTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(tokens AccessTokenParser, loader PrincipalLoader, opts ...Option) *Authenticator {
	a := &Authenticator{
		tokens:  tokens,
		loader:  loader,
		timeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequirePrincipal rejects requests without a valid access token.
// Inactive users are still attached so the order engine can report them.
func (a *Authenticator) RequirePrincipal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if a == nil || a.tokens == nil || a.loader == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			raw, ok := BearerToken(r)
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			claims, err := a.tokens.ParseAccess(raw)
			if err != nil {
				respondTokenError(ctx, w, err)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				respondTokenError(ctx, w, err)
				return
			}

			loadCtx, cancel := context.WithTimeout(ctx, a.timeout)
			principal, err := a.loader.LoadPrincipal(loadCtx, userID)
			cancel()
			if err != nil {
				if errors.Is(err, ErrPrincipalNotFound) {
					respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "token subject is unknown")
					return
				}
				requestctx.Logger(ctx).Warn("load principal failed", zap.Int64("user_id", userID), zap.Error(err))
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "storage_unavailable", "unable to resolve principal")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, &principal)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func respondTokenError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ErrExpiredToken) {
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "access token expired")
		return
	}
	respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "access token invalid")
}
