// Package config содержит логику чтения конфигурации сервиса витрины.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса витрины.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	JWTSecret         string        `env:"JWT_SECRET"`
	RazorpayKeyID     string        `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string        `env:"RAZORPAY_KEY_SECRET"`
	Currency          string        `env:"CURRENCY" envDefault:"INR"`
	PendingPaymentTTL time.Duration `env:"PENDING_PAYMENT_TTL" envDefault:"30m"`
	CatalogCacheTTL   time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"72h"`
}

// GatewayEnabled сообщает, заданы ли ключи платёжного шлюза.
func (c *Config) GatewayEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret
	envKeyID := cfg.RazorpayKeyID
	envKeySecret := cfg.RazorpayKeySecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret used to sign bearer tokens")
	flag.StringVar(&cfg.RazorpayKeyID, "k", "", "razorpay key id")
	flag.StringVar(&cfg.RazorpayKeySecret, "x", "", "razorpay key secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envKeyID != "" {
		cfg.RazorpayKeyID = envKeyID
	}
	if envKeySecret != "" {
		cfg.RazorpayKeySecret = envKeySecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
