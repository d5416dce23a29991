package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string
	Environment string

	// CronSpecTick drives the periodic ledger tick (calculator, scheduler,
	// dispatcher), in standard 5-field cron syntax.
	CronSpecTick string

	DispatchWorkers     int
	DispatchMaxAttempts int
	DispatchSendTimeout time.Duration

	// WhatsAppSender and SMSSender are the gateway-side sender identities.
	WhatsAppSender string
	SMSSender      string
}

// Load reads configuration from environment variables and a .env file (if
// present). godotenv never overrides variables already set in the
// environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.CronSpecTick = os.Getenv("CRON_SPEC_TICK")
	if cfg.CronSpecTick == "" {
		cfg.CronSpecTick = "0 9 * * *" // Default: 9 AM daily
	}

	var err error
	cfg.DispatchWorkers, err = intFromEnv("DISPATCH_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cfg.DispatchMaxAttempts, err = intFromEnv("DISPATCH_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	sendTimeout := os.Getenv("DISPATCH_SEND_TIMEOUT")
	if sendTimeout == "" {
		sendTimeout = "30s"
	}
	cfg.DispatchSendTimeout, err = time.ParseDuration(sendTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_SEND_TIMEOUT: %w", err)
	}

	cfg.WhatsAppSender = os.Getenv("WHATSAPP_SENDER")
	cfg.SMSSender = os.Getenv("SMS_SENDER")

	return cfg, nil
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
