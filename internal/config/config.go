// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Ledger indexer (esplora-style API)
	IndexerURL      string
	IndexerAttempts int
	IndexerInterval time.Duration

	// Payment settings
	TreasuryAddress string // Where tier payments must be sent
	Network         string // "regtest", "testnet", "mainnet"

	// Signing agent
	SignerURL       string // External signing agent endpoint
	CallbackBaseURL string // Public base URL the agent posts callbacks to

	// Settlement timing
	DispatchTimeout time.Duration // Outer deadline for one purchase attempt
	PollMaxWait     time.Duration // Reconciliation poll budget (must be < DispatchTimeout)
	PollInterval    time.Duration

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultIndexerURL      = "https://mempool.staging.midl.xyz"
	DefaultNetwork         = "regtest"
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultIndexerAttempts = 10
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		IndexerURL:      getEnv("INDEXER_URL", DefaultIndexerURL),
		IndexerAttempts: int(getEnvInt64("INDEXER_ATTEMPTS", DefaultIndexerAttempts)),
		IndexerInterval: getEnvDuration("INDEXER_INTERVAL", 800*time.Millisecond),
		TreasuryAddress: os.Getenv("TREASURY_ADDRESS"), // Required, no default
		Network:         getEnv("NETWORK", DefaultNetwork),
		SignerURL:       os.Getenv("SIGNER_URL"),
		CallbackBaseURL: os.Getenv("CALLBACK_BASE_URL"),
		DispatchTimeout: getEnvDuration("DISPATCH_TIMEOUT", 60*time.Second),
		PollMaxWait:     getEnvDuration("POLL_MAX_WAIT", 30*time.Second),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 2*time.Second),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and consistent
func (c *Config) Validate() error {
	if c.TreasuryAddress == "" {
		return fmt.Errorf("TREASURY_ADDRESS is required")
	}

	if c.IndexerURL == "" {
		return fmt.Errorf("INDEXER_URL is required")
	}

	switch c.Network {
	case "regtest", "testnet", "mainnet":
	default:
		return fmt.Errorf("NETWORK must be regtest, testnet, or mainnet (got %q)", c.Network)
	}

	// The reconciliation poll must give up before the outer dispatch deadline,
	// otherwise a genuine cancel can only ever surface as a timeout.
	if c.PollMaxWait >= c.DispatchTimeout {
		return fmt.Errorf("POLL_MAX_WAIT (%s) must be shorter than DISPATCH_TIMEOUT (%s)",
			c.PollMaxWait, c.DispatchTimeout)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
