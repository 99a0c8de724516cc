// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional, analytics events use in-memory store if unset)
	DatabaseURL string

	// Blockchain settings
	RPCURL        string
	ChainID       int64
	TokenContract string // ERC-20 contract used for approvals/allowance reads
	EscrowSpender string // address the escrow program pulls approved funds from
	PrivateKey    string // Hex-encoded; optional, approval signing disabled without it

	// Trading protocol settings
	ArbitratorAddress string // privileged dispute-resolution identity
	FeeAccountAddress string // on-chain account carrying the fee schedule
	DisputeFeeRate    string // fixed rate charged to open a dispute, e.g. "0.005"

	// Collaborator endpoints
	BackendAPIURL    string // REST backend serving orders/users
	StorageUploadURL string // object storage multipart upload endpoint

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPS int
}

// Base Sepolia defaults
const (
	DefaultRPCURL         = "https://sepolia.base.org"
	DefaultChainID        = 84532
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultDisputeFeeRate = "0.005"
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RPCURL:            getEnv("RPC_URL", DefaultRPCURL),
		ChainID:           getEnvInt64("CHAIN_ID", DefaultChainID),
		TokenContract:     os.Getenv("TOKEN_CONTRACT"),
		EscrowSpender:     os.Getenv("ESCROW_SPENDER"),
		PrivateKey:        os.Getenv("PRIVATE_KEY"), // Optional
		ArbitratorAddress: os.Getenv("ARBITRATOR_ADDRESS"),
		FeeAccountAddress: os.Getenv("FEE_ACCOUNT_ADDRESS"),
		DisputeFeeRate:    getEnv("DISPUTE_FEE_RATE", DefaultDisputeFeeRate),
		BackendAPIURL:     os.Getenv("BACKEND_API_URL"),
		StorageUploadURL:  os.Getenv("STORAGE_UPLOAD_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:      int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.BackendAPIURL == "" {
		return fmt.Errorf("BACKEND_API_URL is required")
	}
	if c.ArbitratorAddress == "" {
		return fmt.Errorf("ARBITRATOR_ADDRESS is required")
	}

	// Approval signing is optional, but a present key must be well-formed.
	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if _, err := strconv.ParseFloat(c.DisputeFeeRate, 64); err != nil {
		return fmt.Errorf("DISPUTE_FEE_RATE must be a decimal rate: %v", err)
	}

	return nil
}

// SigningEnabled reports whether an operator key is configured for
// constructing approval transactions.
func (c *Config) SigningEnabled() bool {
	return c.PrivateKey != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
