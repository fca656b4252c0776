// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
)

// Config holds everything the binaries need to wire the storefront.
type Config struct {
	Stage    string
	LogLevel string
	RunLocal bool
	HTTPAddr string

	AWSRegion   string
	AWSEndpoint string

	ProductsTable    string
	DiscountsTable   string
	UsageTable       string
	OrdersTable      string
	IdempotencyTable string
	EventsQueueURL   string
	MetricsNamespace string

	ShippingFee    int64
	IdempotencyTTL time.Duration

	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string

	CORSAllowedOrigins []string
}

// Load reads a .env file when present and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: .env file not loaded: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Stage:            getEnv("STAGE", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RunLocal:         os.Getenv("RUN_LOCAL") == "true",
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		AWSRegion:        os.Getenv("AWS_REGION"),
		AWSEndpoint:      os.Getenv("AWS_ENDPOINT_OVERRIDE"),
		ProductsTable:    getEnv("PRODUCTS_TABLE", "products"),
		DiscountsTable:   getEnv("DISCOUNTS_TABLE", "discounts"),
		UsageTable:       getEnv("DISCOUNT_USAGE_TABLE", "discount_usage"),
		OrdersTable:      getEnv("ORDERS_TABLE", "orders"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		EventsQueueURL:   os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		MetricsNamespace: os.Getenv("METRICS_NAMESPACE"),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		EmailFrom:        getEnv("EMAIL_FROM", "orders@phonestore.local"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Phone Store"),
	}

	fee, err := strconv.ParseInt(getEnv("SHIPPING_FEE", "30000"), 10, 64)
	if err != nil || fee < 0 {
		return cfg, fmt.Errorf("invalid SHIPPING_FEE %q", os.Getenv("SHIPPING_FEE"))
	}
	cfg.ShippingFee = fee

	ttl, err := time.ParseDuration(getEnv("IDEMPOTENCY_TTL", "48h"))
	if err != nil {
		return cfg, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	cfg.IdempotencyTTL = ttl

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg, nil
}

// AWS returns the SDK overrides for this process.
func (c Config) AWS() aws.Options {
	return aws.Options{Region: c.AWSRegion, Endpoint: c.AWSEndpoint}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
