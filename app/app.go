package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/storekit/storefront/internal/auth"
	"github.com/storekit/storefront/internal/cache"
	"github.com/storekit/storefront/internal/config"
	"github.com/storekit/storefront/internal/crypto"
	"github.com/storekit/storefront/internal/db"
	"github.com/storekit/storefront/internal/email"
	"github.com/storekit/storefront/internal/handlers"
	"github.com/storekit/storefront/internal/layout"
	"github.com/storekit/storefront/internal/logging"
	"github.com/storekit/storefront/internal/observability"
	"github.com/storekit/storefront/internal/razorpay"
	"github.com/storekit/storefront/internal/services"
	"github.com/storekit/storefront/internal/session"
)

const gatewayTimeout = 15 * time.Second

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	Redis          *redis.Client
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Handlers       *handlers.Handlers
	RetryWorker    *services.RetryWorker

	stopWorker context.CancelFunc
	workerDone sync.WaitGroup
}

func New() (*App, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := cfg.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: cfg.SentryTracesSampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL, logger.With("component", "db"))
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(startupCtx, database, logger.With("component", "migrations")); err != nil {
			database.Close()
			return nil, err
		}
	}

	var redisClient *redis.Client
	if cfg.CacheProvider == "redis" || cfg.SessionStoreProvider == "redis" {
		redisClient, err = cache.DialRedis(startupCtx, cfg.RedisConnectionString)
		if err != nil {
			database.Close()
			return nil, err
		}
	}

	cacheProvider, err := cache.NewProvider(cache.Config{Provider: cfg.CacheProvider, Redis: redisClient})
	if err != nil {
		closeRedis(logger, redisClient)
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(session.Config{Provider: cfg.SessionStoreProvider, Redis: redisClient})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		closeRedis(logger, redisClient)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	closeAll := func() {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		closeRedis(logger, redisClient)
		database.Close()
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}
	tenantStore, err := db.NewTenantStore(database, encryptor)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize tenant store: %w", err)
	}
	catalogStore := db.NewCatalogStore(database)
	cartStore := db.NewCartStore(database)
	orderStore := db.NewOrderStore(database, db.StockPolicy(cfg.StockPolicy))
	layoutStore := db.NewLayoutStore(database)
	webhookStore := db.NewWebhookStore(database)

	emailRenderer, err := email.NewRenderer()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize email templates: %w", err)
	}
	var emailProvider email.Provider = email.NoopProvider{}
	if cfg.EmailEnabled() {
		emailProvider = email.NewResendProvider(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		logger.Warn("email provider not configured, order emails are disabled")
	}

	gateway := razorpay.NewClient(cfg.RazorpayAPIBaseURL, observability.NewHTTPClient(cfg.RazorpayAPIBaseURL, gatewayTimeout))

	tenantService := services.NewTenantService(tenantStore, logger.With("component", "tenant_service"))
	layoutService := services.NewLayoutService(
		layoutStore,
		layout.NewRenderer(catalogStore, logger.With("component", "layout_renderer")),
		cacheProvider,
		logger.With("component", "layout_service"),
	)
	cartService := services.NewCartService(cartStore, catalogStore, logger.With("component", "cart_service"))
	notifier := services.NewOrderNotifier(emailProvider, emailRenderer, cfg.BaseURL, logger.With("component", "order_notifier"))
	paymentService := services.NewPaymentService(orderStore, gateway, logger.With("component", "payment_service"))
	checkoutService := services.NewCheckoutService(cartService, orderStore, paymentService, notifier, logger.With("component", "checkout_service"))
	retryPolicy := services.RetryPolicy{MaxAttempts: cfg.WebhookMaxAttempts, BaseDelay: cfg.WebhookRetryInterval}
	shippingService := services.NewShippingService(
		orderStore,
		webhookStore,
		tenantStore,
		notifier,
		retryPolicy,
		logger.With("component", "shipping_service"),
	)
	reconciler := services.NewReconciler(
		orderStore,
		webhookStore,
		shippingService,
		cacheProvider,
		retryPolicy,
		logger.With("component", "webhook_reconciler"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		Tenants:        tenantService,
		Layouts:        layoutService,
		Carts:          cartService,
		Checkout:       checkoutService,
		Payments:       paymentService,
		Reconciler:     reconciler,
		Shipping:       shippingService,
		Verifier:       auth.NewVerifier(cfg.AuthJWTSecret),
		SessionManager: sessionManager,
		Logger:         logger,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             database,
		Redis:          redisClient,
		CacheProvider:  cacheProvider,
		SessionManager: sessionManager,
		Handlers:       h,
		RetryWorker:    services.NewRetryWorker(reconciler, cfg.WebhookRetryInterval, logger.With("component", "webhook_retry_worker")),
	}, nil
}

// Start launches background workers. Close stops them.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.WithLogger(ctx, a.Logger)
	a.stopWorker = cancel

	a.workerDone.Add(1)
	go func() {
		defer a.workerDone.Done()
		a.RetryWorker.Run(ctx)
	}()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.stopWorker != nil {
		a.stopWorker()
		a.workerDone.Wait()
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	closeRedis(a.Logger, a.Redis)
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}

func closeRedis(logger *slog.Logger, client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("failed to close redis client", "error", err)
	}
}
