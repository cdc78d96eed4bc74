package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fitmarket/api/internal/di"
	"github.com/fitmarket/api/internal/handlers"
	"github.com/fitmarket/api/internal/notify"
	"github.com/fitmarket/api/internal/payments"
	"github.com/fitmarket/api/internal/platform/auth"
	"github.com/fitmarket/api/internal/platform/blobstore"
	"github.com/fitmarket/api/internal/platform/cache"
	"github.com/fitmarket/api/internal/platform/config"
	pfirestore "github.com/fitmarket/api/internal/platform/firestore"
	"github.com/fitmarket/api/internal/platform/httpx"
	"github.com/fitmarket/api/internal/platform/idempotency"
	"github.com/fitmarket/api/internal/platform/jobs"
	"github.com/fitmarket/api/internal/platform/observability"
	"github.com/fitmarket/api/internal/platform/secrets"
	"github.com/fitmarket/api/internal/repositories"
	firestoreRepo "github.com/fitmarket/api/internal/repositories/firestore"
	"github.com/fitmarket/api/internal/services"
)

// paymentRelaySecret names the HMAC secret shared with the payment relay.
const paymentRelaySecret = "payments"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

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
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider, err := pfirestore.NewProvider(ctx, cfg.Firestore)
	if err != nil {
		logger.Fatal("failed to initialise firestore provider", zap.Error(err))
	}
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	checks := []repositories.DependencyCheck{firestoreCheck(firestoreClient), secretManagerCheck(fetcher)}

	blobs, closeBlobs, blobCheck, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise content store", zap.Error(err))
	}
	defer closeBlobs()
	if blobCheck != nil {
		checks = append(checks, *blobCheck)
	}

	var invalidators cache.Multi
	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Cache.RedisAddr); addr != "" {
		redisClient, err = cache.Connect(ctx, addr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		pageCache, err := cache.NewPageCache(redisClient, logger.Named("cache"))
		if err != nil {
			logger.Fatal("failed to initialise page cache", zap.Error(err))
		}
		invalidators = append(invalidators, pageCache)
		checks = append(checks, redisCheck(redisClient))
	}

	var events services.EventPublisher
	if topicID := strings.TrimSpace(cfg.Cache.PubSubTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(topicID)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		eventInvalidator, err := cache.NewEventInvalidator(publisher, time.Now)
		if err != nil {
			logger.Fatal("failed to initialise event invalidator", zap.Error(err))
		}
		invalidators = append(invalidators, eventInvalidator)
		events = publisher
	}
	var invalidator cache.Invalidator = cache.Noop{}
	if len(invalidators) > 0 {
		invalidator = invalidators
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			paymentsLogger.Debug("stripe log", zapFields(event, fields)...)
		},
		Clock: time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}

	var notifier notify.Notifier = notify.Noop{}
	if key := strings.TrimSpace(cfg.Email.ResendAPIKey); key != "" {
		resendNotifier, err := notify.NewResendNotifier(key, cfg.Email.From)
		if err != nil {
			logger.Fatal("failed to initialise resend notifier", zap.Error(err))
		}
		notifier = resendNotifier
	} else {
		logger.Warn("email: resend api key not configured; notifications disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Blobs:       blobs,
		Invalidator: invalidator,
		Payments:    stripeProvider,
		Notifier:    notifier,
		Events:      events,
		Build:       buildInfo,
		Clock:       time.Now,
		Loggers: map[string]di.Logger{
			"trainers": di.Logger(observability.NewEventLogger(logger, "trainers")),
			"content":  di.Logger(observability.NewEventLogger(logger, "content")),
			"leads":    di.Logger(observability.NewEventLogger(logger, "leads")),
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.Optional(),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.Sweep(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	trainerHandlers := handlers.NewTrainerHandlers(svc.Trainers)
	leadHandlers := handlers.NewLeadHandlers(authenticator, svc.Leads)

	var webhookOpts []handlers.WebhookOption
	if relay := buildRelayMiddleware(logger.Named("auth"), cfg); relay != nil {
		webhookOpts = append(webhookOpts, handlers.WithRelayMiddlewares(relay))
	} else {
		logger.Warn("auth: payment relay secret not configured; relay confirmations will be rejected")
		webhookOpts = append(webhookOpts, handlers.WithRelayMiddlewares(rejectAll))
	}
	webhookHandlers := handlers.NewWebhookHandlers(svc.Trainers, stripeProvider, webhookOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithTrainerRoutes(trainerHandlers.Routes),
		handlers.WithLeadRoutes(leadHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithPublicMiddlewares(idempotencyMiddleware),
		handlers.WithPublicRateLimit(cfg.RateLimits.PublicPerMinute, time.Minute),
		handlers.WithWebhookRateLimit(cfg.RateLimits.WebhookBurst, time.Second),
	}
	if svc.Content != nil {
		contentHandlers := handlers.NewContentHandlers(authenticator, svc.Content)
		opts = append(opts,
			handlers.WithContentRoutes(contentHandlers.Routes),
			handlers.WithAdminRoutes(func(r chi.Router) {
				r.Route("/leads", leadHandlers.AdminRoutes)
				r.Route("/content", contentHandlers.AdminRoutes)
			}),
		)
	} else {
		opts = append(opts, handlers.WithAdminRoutes(func(r chi.Router) {
			r.Route("/leads", leadHandlers.AdminRoutes)
		}))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("fitmarket api listening", zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
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
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// newBlobStore returns the content store, a close func, and an optional readiness probe.
func newBlobStore(ctx context.Context, cfg config.Config) (blobstore.Store, func(), *repositories.DependencyCheck, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return blobstore.NewMemoryStore(), func() {}, nil, nil
	case "gcs", "":
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := cloudstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("storage client: %w", err)
	}
	store, err := blobstore.NewGCSStore(client, cfg.Storage.ContentBucket)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	bucket := client.Bucket(cfg.Storage.ContentBucket)
	check := repositories.DependencyCheck{
		Name:    "contentBucket",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			_, err := bucket.Attrs(ctx)
			return err
		},
	}
	return store, func() { _ = client.Close() }, &check, nil
}

func firestoreCheck(client *firestore.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			iter := client.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func redisCheck(client *redis.Client) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "redis",
		Timeout: 500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

func buildRelayMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secrets := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		secrets[strings.ToLower(key)] = value
	}
	if _, ok := secrets[paymentRelaySecret]; !ok {
		return nil
	}

	validator := auth.NewHMACValidator(secrets, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC(paymentRelaySecret)
}

func rejectAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("signature_required", "payment relay is not configured", http.StatusUnauthorized))
	})
}

func zapFields(event string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("event", event))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
	}
	for _, key := range parseHMACSecretKeys(strings.TrimSpace(env["API_SECURITY_HMAC_SECRETS"])) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}
	return uniqueStrings(required)
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
