package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doug-pr/API-Pizzaria/internal/handlers"
	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
	"github.com/doug-pr/API-Pizzaria/internal/platform/config"
	"github.com/doug-pr/API-Pizzaria/internal/platform/idempotency"
	"github.com/doug-pr/API-Pizzaria/internal/platform/observability"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
	"github.com/doug-pr/API-Pizzaria/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Auth   services.AuthService
	Orders services.OrderService
	System services.SystemService
}

// Container wires repositories, services, and HTTP handlers for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Tokens        *auth.TokenService
	Authenticator *auth.Authenticator
	Idempotency   idempotency.Store

	build  services.BuildInfo
	logger *zap.Logger
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	logger      *zap.Logger
	events      services.OrderEventPublisher
	idempotency idempotency.Store
	build       services.BuildInfo
	clock       func() time.Time
}

// WithLogger sets the base logger used for service event hooks.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventPublisher publishes order lifecycle events.
func WithEventPublisher(pub services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = pub
	}
}

// WithIdempotencyStore overrides the in-memory idempotency store.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *containerOptions) {
		o.idempotency = store
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithClock overrides the clock handed to services and token issuance.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies on top of reg. Tests supply the
// in-memory registry; production passes the Firestore one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.idempotency == nil {
		o.idempotency = idempotency.NewMemoryStore()
	}
	if o.build.StartedAt.IsZero() {
		o.build.StartedAt = o.clock().UTC()
	}
	if o.build.Environment == "" {
		o.build.Environment = cfg.Environment
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SecretKey),
		auth.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTokenClock(o.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("build token service: %w", err)
	}

	svc, err := buildServices(ctx, reg, cfg, tokens, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		Tokens:        tokens,
		Authenticator: auth.NewAuthenticator(tokens, svc.Auth),
		Idempotency:   o.idempotency,
		build:         o.build,
		logger:        o.logger,
	}, nil
}

// Router assembles the HTTP surface. Extra middlewares run after the router defaults.
func (c *Container) Router(middlewares ...func(http.Handler) http.Handler) http.Handler {
	authHandlers := handlers.NewAuthHandlers(c.Services.Auth,
		handlers.WithLoginRateLimit(c.Config.RateLimits.LoginPerMinute),
	)
	orderHandlers := handlers.NewOrderHandlers(c.Authenticator, c.Services.Orders,
		handlers.WithOrderIdempotency(idempotency.Middleware(c.Idempotency,
			idempotency.WithHeader(c.Config.Idempotency.Header),
			idempotency.WithTTL(c.Config.Idempotency.TTL),
		)),
	)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(c.build)}
	if c.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(c.Services.System))
	}

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, tokens *auth.TokenService, o containerOptions) (Services, error) {
	var svc Services

	authSvc, err := services.NewAuthService(services.AuthServiceDeps{
		Users:               reg.Users(),
		Counters:            reg.Counters(),
		UnitOfWork:          reg,
		Tokens:              tokens,
		Hasher:              auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		BootstrapAdminEmail: strings.TrimSpace(cfg.Auth.BootstrapAdminEmail),
		Clock:               o.clock,
		Logger:              observability.EventLogger(o.logger.Named("auth")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}
	svc.Auth = authSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Clock:      o.clock,
		Events:     o.events,
		Logger:     observability.EventLogger(o.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            o.clock,
			Build:            o.build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
