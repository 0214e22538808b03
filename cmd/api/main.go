package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/kasir-pos/internal/api"
	"github.com/noah-isme/kasir-pos/internal/catalog"
	"github.com/noah-isme/kasir-pos/internal/checkout"
	"github.com/noah-isme/kasir-pos/internal/common"
	"github.com/noah-isme/kasir-pos/internal/config"
	"github.com/noah-isme/kasir-pos/internal/events"
	"github.com/noah-isme/kasir-pos/internal/health"
	"github.com/noah-isme/kasir-pos/internal/obs"
	"github.com/noah-isme/kasir-pos/internal/qr"
	"github.com/noah-isme/kasir-pos/internal/ratelimit"
	"github.com/noah-isme/kasir-pos/internal/rates"
	"github.com/noah-isme/kasir-pos/internal/resilience"
	"github.com/noah-isme/kasir-pos/internal/security"
	"github.com/noah-isme/kasir-pos/internal/session"
	"github.com/noah-isme/kasir-pos/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kasir")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "kasir-pos",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if tracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	// the snapshot store and cache degrade gracefully, so a missing redis is
	// logged but not fatal
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, session persistence disabled")
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	catalogBreaker := resilience.NewBreaker(5, 0.6, 30*time.Second).WithUpstream("catalog", &logger)
	ratesBreaker := resilience.NewBreaker(5, 0.6, 30*time.Second).WithUpstream("rates", &logger)
	newFetcher := func(breaker *resilience.Breaker, upstream string) resilience.Fetcher {
		return resilience.Fetcher{
			Client:      httpClient,
			Breaker:     breaker,
			Upstream:    upstream,
			MaxAttempts: cfg.FetchMaxAttempts,
			BaseBackoff: cfg.FetchBackoff,
			Jitter:      0.3,
			Timeout:     cfg.FetchTimeout,
		}
	}

	catalogClient := catalog.Client{
		Fetcher:  newFetcher(catalogBreaker, "catalog"),
		Endpoint: cfg.ProductsURL,
	}
	ratesClient := rates.Client{
		Fetcher:  newFetcher(ratesBreaker, "rates"),
		Endpoint: cfg.RatesURL,
		Base:     cfg.BaseCurrency,
	}

	adapter := store.Adapter{
		Client:          redisClient,
		Key:             cfg.SnapshotKey,
		DefaultCurrency: cfg.BaseCurrency,
		Logger:          logger,
	}

	bus := events.NewBus()
	bus.Subscribe(events.TopicCartChanged, adapter.Notifier())
	bus.Subscribe(events.TopicCurrencyChanged, adapter.Notifier())

	sess := session.New(session.Config{
		Catalog:         catalogClient,
		Rates:           ratesClient,
		Cache:           catalog.NewCache(redisClient, "kasir:catalog", cfg.CatalogCacheTTL),
		Store:           adapter,
		Bus:             bus,
		Processor:       checkout.Processor{Merchant: cfg.MerchantName},
		BaseCurrency:    cfg.BaseCurrency,
		TaxBps:          cfg.TaxBps,
		PriceMultiplier: cfg.PriceMultiplier,
		Logger:          logger,
	})
	sess.Restore(ctx)
	sess.WarmFromCache(ctx)
	go func() {
		refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 2*cfg.FetchTimeout)
		defer refreshCancel()
		if err := sess.Refresh(refreshCtx); err != nil {
			logger.Warn().Err(err).Msg("initial refresh failed, serving cached data")
		}
	}()

	apiHandler := &api.Handler{
		Session: sess,
		QR: qr.Renderer{
			FallbackBaseURL: cfg.QRFallbackURL,
			Size:            cfg.QRSize,
		},
		Validate: validator.New(),
		Logger:   logger,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	limited := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "kasir:ratelimit"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: true, EnableHSTS: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{redis: redisClient, sess: sess},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/healthz/live", healthHandler.Live)
	r.Get("/healthz/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", apiHandler.Products)
		v.Get("/rates", apiHandler.Rates)

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", apiHandler.Cart)
			c.Delete("/", apiHandler.ClearCart)
			c.Post("/items", apiHandler.AddItem)
			c.Patch("/items/{productID}", apiHandler.ChangeQty)
			c.Delete("/items/{productID}", apiHandler.RemoveItem)
		})

		v.Put("/currency", apiHandler.SelectCurrency)
		v.With(limited.Middleware).Post("/refresh", apiHandler.Refresh)
		v.With(limited.Middleware).Post("/checkout", apiHandler.Checkout)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// persist the final session state before the process goes away
	adapter.Save(shutdownCtx, sess.Snapshot())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis *redis.Client
	sess  *session.Session
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) DataLoaded() bool {
	return c.sess != nil && c.sess.DataLoaded()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
