package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
	"github.com/doug-pr/API-Pizzaria/internal/platform/httpx"
	"github.com/doug-pr/API-Pizzaria/internal/services"
)

const (
	tokenTypeBearer  = "bearer"
	loginRateWindow  = time.Minute
	maxLoginFormSize = 4 * 1024
)

// AuthHandlers exposes registration, login and token refresh.
type AuthHandlers struct {
	auth        services.AuthService
	loginLimits rateLimiter
	clock       func() time.Time
}

// AuthHandlersOption customises AuthHandlers.
type AuthHandlersOption func(*AuthHandlers)

// WithLoginRateLimit caps login attempts per client IP per minute. Zero disables the cap.
func WithLoginRateLimit(perMinute int) AuthHandlersOption {
	return func(h *AuthHandlers) {
		if limiter := newWindowLimiter(perMinute, loginRateWindow, h.clock); limiter != nil {
			h.loginLimits = limiter
		}
	}
}

// WithAuthClock overrides the clock used for rate limiting and expiry fields.
func WithAuthClock(clock func() time.Time) AuthHandlersOption {
	return func(h *AuthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewAuthHandlers constructs AuthHandlers. Options are applied in order, so WithAuthClock goes first.
func NewAuthHandlers(svc services.AuthService, opts ...AuthHandlersOption) *AuthHandlers {
	h := &AuthHandlers{
		auth:  svc,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.ping)
	r.Post("/register", h.register)
	r.Group(func(limited chi.Router) {
		limited.Use(limitByClientIP(h.loginLimits, loginRateWindow))
		limited.Post("/login", h.login)
		limited.Post("/login-form", h.loginForm)
	})
	r.Post("/refresh", h.refresh)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Active    bool   `json:"active"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (h *AuthHandlers) ping(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(r.Context(), w, http.StatusOK, map[string]any{
		"message":       "auth service reachable",
		"authenticated": false,
	})
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	user, err := h.auth.Register(ctx, services.RegisterCommand{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusCreated, userPayload{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Active:    user.Active,
		Admin:     user.Admin,
		CreatedAt: formatTime(user.CreatedAt),
	})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	pair, err := h.auth.Login(ctx, services.LoginCommand{Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    h.secondsUntil(pair.AccessExpiresAt),
	})
}

// loginForm accepts the OAuth2 password grant form and issues an access token only.
func (h *AuthHandlers) loginForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginFormSize)
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "invalid form body", http.StatusBadRequest))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if strings.TrimSpace(username) == "" || password == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "username and password are required", http.StatusBadRequest))
		return
	}

	token, err := h.auth.LoginAccessOnly(ctx, services.LoginCommand{Email: username, Password: password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, tokenResponse{
		AccessToken: token.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   h.secondsUntil(token.ExpiresAt),
	})
}

// refresh accepts the refresh token in the JSON body or as a bearer credential.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service unavailable", http.StatusServiceUnavailable))
		return
	}

	raw, ok := auth.BearerToken(r)
	if !ok {
		var req refreshRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeBodyError(ctx, w, err)
			return
		}
		raw = strings.TrimSpace(req.RefreshToken)
	}
	if raw == "" {
		writeServiceError(ctx, w, services.ErrUnauthenticated)
		return
	}

	token, err := h.auth.Refresh(ctx, raw)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, tokenResponse{
		AccessToken: token.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   h.secondsUntil(token.ExpiresAt),
	})
}

func (h *AuthHandlers) secondsUntil(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	remaining := t.Sub(h.clock())
	if remaining < 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
