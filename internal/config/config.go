package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable via WALLET_STORAGE.
const (
	BackendPostgres = "postgres"
	BackendSqlite   = "sqlite"
	BackendMemory   = "memory"
)

const defaultLockTimeoutMS = 3000

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string

	StorageBackend string
	DatabaseURL    string
	SqlitePath     string
	LockTimeout    time.Duration

	RedisAddr             string
	RateLimitCapacity     int
	RateLimitRefillPerSec float64

	MaxBodyBytes int64
	IPAllowlist  []string

	TLSCertFile       string
	TLSKeyFile        string
	TLSClientCAFile   string
	RequireClientCert bool
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    os.Getenv("APP_ENV"),
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		StorageBackend: envOr("WALLET_STORAGE", BackendMemory),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SqlitePath:     envOr("SQLITE_PATH", "wallet.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		TLSCertFile:     os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("TLS_KEY_FILE"),
		TLSClientCAFile: os.Getenv("TLS_CLIENT_CA_FILE"),
	}

	lockMS, err := envInt("LOCK_TIMEOUT_MS", defaultLockTimeoutMS)
	if err != nil {
		return nil, err
	}
	cfg.LockTimeout = time.Duration(lockMS) * time.Millisecond

	cfg.RateLimitCapacity, err = envInt("RATE_LIMIT_CAPACITY", 0)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitRefillPerSec, err = envFloat("RATE_LIMIT_REFILL_PER_SEC", 0)
	if err != nil {
		return nil, err
	}

	maxBody, err := envInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if raw := os.Getenv("IP_ALLOWLIST"); raw != "" {
		cfg.IPAllowlist = strings.Split(raw, ",")
	}

	cfg.RequireClientCert = os.Getenv("REQUIRE_CLIENT_CERT") == "true"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}

	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendSqlite:
		if c.SqlitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("WALLET_STORAGE must be one of %s, %s, %s; got %q",
			BackendPostgres, BackendSqlite, BackendMemory, c.StorageBackend)
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.LockTimeout <= 0 {
		return errors.New("LOCK_TIMEOUT_MS must be positive")
	}

	if c.RateLimitCapacity > 0 {
		if c.RedisAddr == "" {
			return errors.New("RATE_LIMIT_CAPACITY requires REDIS_ADDR")
		}
		if c.RateLimitRefillPerSec <= 0 {
			return errors.New("RATE_LIMIT_CAPACITY requires a positive RATE_LIMIT_REFILL_PER_SEC")
		}
	}

	// Production traffic must not run over plaintext.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required in " + c.Environment)
		}
		if c.StorageBackend == BackendMemory {
			return errors.New("the memory storage backend is not allowed in " + c.Environment)
		}
	}

	if c.RequireClientCert && c.TLSClientCAFile == "" {
		return errors.New("REQUIRE_CLIENT_CERT requires TLS_CLIENT_CA_FILE")
	}

	return nil
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func envFloat(name string, fallback float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return f, nil
}
