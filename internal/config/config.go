package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	ProductsURL string
	RatesURL    string

	BaseCurrency    string
	TaxBps          int
	MerchantName    string
	PriceMultiplier int64

	SnapshotKey     string
	CatalogCacheTTL time.Duration

	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoff     time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int

	QRSize        int
	QRFallbackURL string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           valueOrDefault(k.String("REDIS_URL"), "redis://localhost:6379/0"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		ProductsURL: valueOrDefault(k.String("PRODUCTS_URL"), "https://dummyjson.com/products/category/groceries"),
		RatesURL:    valueOrDefault(k.String("RATES_URL"), "https://api.exchangerate.host/latest"),

		BaseCurrency:    valueOrDefault(k.String("BASE_CURRENCY"), "IDR"),
		TaxBps:          parseInt(k.String("TAX_BPS"), 1000),
		MerchantName:    valueOrDefault(k.String("MERCHANT_NAME"), "UMKM SAYUR SEHAT"),
		PriceMultiplier: int64(parseInt(k.String("PRICE_MULTIPLIER"), 16000)),

		SnapshotKey:     valueOrDefault(k.String("SNAPSHOT_KEY"), "kasir:session"),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "1h"),

		FetchTimeout:     parseDuration(k.String("FETCH_TIMEOUT"), "10s"),
		FetchMaxAttempts: parseInt(k.String("FETCH_MAX_ATTEMPTS"), 3),
		FetchBackoff:     parseDuration(k.String("FETCH_BACKOFF"), "200ms"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 30),

		QRSize:        parseInt(k.String("QR_SIZE"), 220),
		QRFallbackURL: strings.TrimSpace(k.String("QR_FALLBACK_URL")),
	}

	if cfg.TaxBps < 0 || cfg.TaxBps >= 10000 {
		return nil, fmt.Errorf("TAX_BPS must be in [0, 10000), got %d", cfg.TaxBps)
	}
	if cfg.PriceMultiplier <= 0 {
		return nil, fmt.Errorf("PRICE_MULTIPLIER must be positive, got %d", cfg.PriceMultiplier)
	}
	if cfg.BaseCurrency == "" {
		return nil, fmt.Errorf("BASE_CURRENCY is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}
