package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the escrow service.
// Environment variables are parsed from the ESCROW_ prefix.
type Config struct {
	// Build target selects the high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override backends
	DBDriver        string `envconfig:"DB_DRIVER" default:"auto"`
	TransferBackend string `envconfig:"TRANSFER_BACKEND" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Journal storage
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"escrowd.db"`

	// Custody gateway (cloud target)
	GatewayURL    string `envconfig:"GATEWAY_URL" default:""`
	GatewayAPIKey string `envconfig:"GATEWAY_API_KEY" default:""`

	// Privileged identity and API keys. ActorAPIKeys maps key -> actor id
	// ("sk_abc:alice,sk_def:bob"); outside production the dev authorizer
	// additionally accepts sk_dev_<actor> keys.
	OperatorID     string            `envconfig:"OPERATOR_ID" default:"operator-root"`
	OperatorAPIKey string            `envconfig:"OPERATOR_API_KEY" default:""`
	ActorAPIKeys   map[string]string `envconfig:"ACTOR_API_KEYS" default:""`

	// Ledger parameters
	MinLockSeconds int64    `envconfig:"MIN_LOCK_SECONDS" default:"1209600"` // 14 days
	AllowedAssets  []string `envconfig:"ALLOWED_ASSETS" default:"native"`
	EventBusBuffer int      `envconfig:"EVENT_BUS_BUFFER" default:"256"`

	// Health checking
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and
// TransferBackend when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB, defaultTransfer string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
		defaultTransfer = "memory"
	case "cloud-dev":
		defaultDB = "postgres"
		defaultTransfer = "memory"
	case "cloud":
		defaultDB = "postgres"
		defaultTransfer = "gateway"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.TransferBackend == "" || c.TransferBackend == "auto" {
		c.TransferBackend = defaultTransfer
	}

	allowedDB := map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	allowedTransfer := map[string]bool{"memory": true, "gateway": true}
	if !allowedTransfer[c.TransferBackend] {
		return fmt.Errorf("unsupported TRANSFER_BACKEND: %s", c.TransferBackend)
	}
	if c.TransferBackend == "gateway" && c.GatewayURL == "" {
		return fmt.Errorf("TRANSFER_BACKEND=gateway requires GATEWAY_URL")
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
	}
	if c.MinLockSeconds <= 0 {
		return fmt.Errorf("MIN_LOCK_SECONDS must be positive")
	}
	return nil
}

// New creates a Config by parsing environment variables with the ESCROW_
// prefix, e.g. ESCROW_HTTP_PORT, ESCROW_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("ESCROW", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("transfer_backend", cfg.TransferBackend).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("operator", cfg.OperatorID).
		Int64("min_lock_seconds", cfg.MinLockSeconds).
		Strs("allowed_assets", cfg.AllowedAssets).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing: in-memory journal
// and bank, permissive dev keys.
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "memory",
		TransferBackend:           "memory",
		Environment:               EnvTesting,
		HTTPPort:                  8080,
		OperatorID:                "operator-root",
		OperatorAPIKey:            "sk_test_operator",
		MinLockSeconds:            int64((14 * 24 * time.Hour).Seconds()),
		AllowedAssets:             []string{"native", "token:usdc"},
		EventBusBuffer:            64,
		HealthProbeTimeoutSeconds: 2,
		HealthIntervalSeconds:     30,
	}
}

// MinLockTime returns the minimum lock duration.
func (c *Config) MinLockTime() time.Duration {
	return time.Duration(c.MinLockSeconds) * time.Second
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
