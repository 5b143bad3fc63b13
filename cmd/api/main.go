package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/payone-gateway/internal/config"
	"github.com/noah-isme/payone-gateway/internal/fingerprint"
	"github.com/noah-isme/payone-gateway/internal/health"
	"github.com/noah-isme/payone-gateway/internal/lock"
	"github.com/noah-isme/payone-gateway/internal/obs"
	"github.com/noah-isme/payone-gateway/internal/payment"
	"github.com/noah-isme/payone-gateway/internal/payone"
	"github.com/noah-isme/payone-gateway/internal/request"
	"github.com/noah-isme/payone-gateway/internal/resilience"
	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
	"github.com/noah-isme/payone-gateway/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics("payone", nil)

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "payone-gateway",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.AutoMigrate {
		m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "payone-gateway"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	gatewayClient := &payone.Client{
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithLogger(logger),
			MaxAttempts: 1,
			Timeout:     cfg.GatewayTimeout,
		},
		BaseURL: cfg.PayoneAPIURL,
		Credentials: payone.Credentials{
			MerchantID:   cfg.PayoneMerchantID,
			PortalID:     cfg.PayonePortalID,
			SubAccountID: cfg.PayoneSubAccountID,
			PortalKey:    cfg.PayonePortalKey,
			Mode:         cfg.PayoneMode,
		},
		Logger: logger,
	}

	store := txdata.NewPostgresStore(pool)
	statusSvc := status.NewService(store, logger, cfg.StatusMapping)
	locker := lock.NewLocker(redisClient, cfg.LockTTL, cfg.LockRetryBackoff)
	fingerprintSvc := fingerprint.NewService(redisClient, cfg.FingerprintTokenTTL)
	factory := request.NewDefaultFactory(validate)

	paymentSvc := payment.NewService(store, factory, gatewayClient, statusSvc, fingerprintSvc, payment.Options{
		DebitAuthorizationMethod:       cfg.DebitAuthorizationMethod,
		InstallmentAuthorizationMethod: cfg.InstallmentAuthorizationMethod,
	}, logger)
	paymentHandler := payment.NewHandler(paymentSvc, validate, logger)
	webhookHandler := webhook.NewHandler(store, statusSvc, redisClient, locker, cfg.PayonePortalKey, cfg.WebhookReplayTTL, logger)

	webhookLimiter, err := newWebhookLimiter(redisClient, cfg.WebhookRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure webhook rate limit")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthChecker := &health.Checker{Pool: pool, Redis: redisClient, Logger: logger}
	r.Get("/health/live", healthChecker.Live)
	r.Get("/health/ready", healthChecker.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		paymentHandler.Routes(v)
		v.With(webhookLimiter.Handler).Post("/payone/webhook", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: otelhttp.NewHandler(r, "payone-gateway"),
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// newWebhookLimiter bounds how fast notifications are accepted per source IP.
// The processor retries rejected deliveries, so shedding load here is safe.
func newWebhookLimiter(client *redis.Client, formatted string) (*limiterstdlib.Middleware, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "limiter:webhook"})
	if err != nil {
		return nil, err
	}
	return limiterstdlib.NewMiddleware(limiter.New(store, rate)), nil
}
