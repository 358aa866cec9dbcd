package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

type Config struct {
	Server   ServerConfig
	AWS      AWSConfig
	Carrier  shipping.CarrierConfig
	Gateway  payment.GatewayConfig
	Platform orders.PlatformConfig
	Quote    QuoteConfig
	Checkout CheckoutConfig
}

type ServerConfig struct {
	Port     string
	RunLocal bool
	LogLevel string
}

type AWSConfig struct {
	Region           string
	Endpoint         string
	IdempotencyTable string
	QueueURL         string
	MetricsNamespace string
	IdempotencyTTL   time.Duration
}

// QuoteConfig throttles the quote endpoint per client IP.
type QuoteConfig struct {
	Mock           bool
	RateLimitRPS   float64
	RateLimitBurst int
}

type CheckoutConfig struct {
	MinimumPurchase decimal.Decimal
	Currency        string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			RunLocal: getEnvBool("RUN_LOCAL", false),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", aws.DefaultRegion),
			Endpoint:         getEnv("AWS_ENDPOINT_URL", ""),
			IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", ""),
			QueueURL:         getEnv("ORDERS_QUEUE_URL", ""),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", aws.DefaultNamespace),
			IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", idempotency.DefaultTTL),
		},
		Carrier: shipping.CarrierConfig{
			BaseURL:         getEnv("CARRIER_BASE_URL", shipping.DefaultBaseURL),
			User:            getEnv("CARRIER_USER", ""),
			Password:        getEnv("CARRIER_PASSWORD", ""),
			CustomerID:      getEnv("CARRIER_CUSTOMER_ID", ""),
			AccountEmail:    getEnv("CARRIER_ACCOUNT_EMAIL", ""),
			AccountPassword: getEnv("CARRIER_ACCOUNT_PASSWORD", ""),
			Timeout:         getEnvMillis("CARRIER_TIMEOUT_MS", shipping.DefaultTimeout),
			DefaultOrigin:   getEnv("CARRIER_ORIGIN_POSTAL_CODE", shipping.DefaultOrigin),
		},
		Gateway: payment.GatewayConfig{
			BaseURL:     getEnv("GATEWAY_BASE_URL", payment.DefaultGatewayURL),
			AccessToken: getEnv("GATEWAY_ACCESS_TOKEN", ""),
			Timeout:     getEnvMillis("GATEWAY_TIMEOUT_MS", 15*time.Second),
		},
		Platform: orders.PlatformConfig{
			Domain:      getEnv("PLATFORM_API_DOMAIN", orders.DefaultPlatformDomain),
			Version:     getEnv("PLATFORM_API_VERSION", orders.DefaultPlatformVersion),
			StoreID:     getEnv("PLATFORM_STORE_ID", ""),
			AccessToken: getEnv("PLATFORM_ACCESS_TOKEN", ""),
			UserAgent:   getEnv("PLATFORM_USER_AGENT", orders.DefaultUserAgent),
			Timeout:     getEnvMillis("PLATFORM_TIMEOUT_MS", 15*time.Second),
		},
		Quote: QuoteConfig{
			Mock:           getEnvBool("CARRIER_MOCK", true),
			RateLimitRPS:   getEnvFloat("QUOTE_RATE_LIMIT_RPS", 2),
			RateLimitBurst: getEnvInt("QUOTE_RATE_LIMIT_BURST", 5),
		},
		Checkout: CheckoutConfig{
			MinimumPurchase: getEnvDecimal("CHECKOUT_MINIMUM_PURCHASE", decimal.Zero),
			Currency:        strings.ToUpper(getEnv("CHECKOUT_CURRENCY", purchase.DefaultCurrency)),
		},
	}

	// no credentials, no live carrier
	if !cfg.Carrier.HasCredentials() {
		cfg.Quote.Mock = true
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvMillis reads a positive integer number of milliseconds.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if ms := getEnvInt(key, 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
