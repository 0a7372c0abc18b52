package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/doug-pr/API-Pizzaria/internal/di"
	"github.com/doug-pr/API-Pizzaria/internal/platform/config"
	pfirestore "github.com/doug-pr/API-Pizzaria/internal/platform/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/platform/idempotency"
	"github.com/doug-pr/API-Pizzaria/internal/platform/jobs"
	"github.com/doug-pr/API-Pizzaria/internal/platform/observability"
	"github.com/doug-pr/API-Pizzaria/internal/platform/secrets"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
	firestoreRepo "github.com/doug-pr/API-Pizzaria/internal/repositories/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/repositories/memory"
	"github.com/doug-pr/API-Pizzaria/internal/services"
)

const idempotencyCollection = "idempotency_keys"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Auth.SecretKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var (
		registry         repositories.Registry
		idempotencyStore idempotency.Store
		healthChecks     []repositories.DependencyCheck
		containerOpts    []di.Option
	)

	if topic := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		orderTopic := pubsubClient.Topic(topic)
		defer orderTopic.Stop()

		publisher, err := jobs.NewPubSubOrderEventPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithEventPublisher(publisher))
		healthChecks = append(healthChecks, pubsubTopicCheck(orderTopic))
	}

	switch cfg.Storage.Backend {
	case config.StorageBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		client, err := provider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		healthChecks = append(healthChecks, firestoreCheck(client))

		healthRepo, err := repositories.NewDependencyHealthRepository(healthChecks)
		if err != nil {
			logger.Fatal("failed to initialise health repository", zap.Error(err))
		}
		reg, err := firestoreRepo.NewRegistry(provider, healthRepo,
			pfirestore.WithTxAttempts(cfg.Firestore.TxMaxAttempts),
			pfirestore.WithTxTimeout(cfg.Firestore.TxTimeout),
		)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		registry = reg

		store, err := idempotency.NewFirestoreStore(provider, idempotencyCollection)
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = store
	default:
		var healthRepo repositories.HealthRepository
		if len(healthChecks) > 0 {
			healthRepo, err = repositories.NewDependencyHealthRepository(healthChecks)
			if err != nil {
				logger.Fatal("failed to initialise health repository", zap.Error(err))
			}
		}
		registry = memory.NewStore(healthRepo)
		idempotencyStore = idempotency.NewMemoryStore()
		logger.Warn("using in-memory storage; data is lost on restart")
	}

	containerOpts = append(containerOpts,
		di.WithLogger(logger),
		di.WithIdempotencyStore(idempotencyStore),
		di.WithBuildInfo(buildInfo),
	)
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
		}()
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	httpLogger := logger.Named("http")
	router := container.Router(
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Backend))
	go func() {
		serverLogger.Info("pizzeria api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func firestoreCheck(client *firestore.Client) repositories.DependencyCheck {
	return repositories.ListingCheck("firestore", 1500*time.Millisecond, func(ctx context.Context) error {
		_, err := client.Collections(ctx).Next()
		return err
	})
}

func pubsubTopicCheck(topic *pubsub.Topic) repositories.DependencyCheck {
	return repositories.TopicCheck("pubsub", time.Second, topic)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
