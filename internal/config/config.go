package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

type Config struct {
	StellarNetwork string   `env:"STELLAR_NETWORK,required"`
	HorizonURL     string   `env:"HORIZON_URL"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	MigrationsURL  string   `env:"MIGRATIONS_URL,default=file://migrations"`
	RedisURL       string   `env:"REDIS_URL"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS"`
	KafkaTopic     string   `env:"KAFKA_TOPIC,default=submissions.finalized"`
	Port           int      `env:"PORT,default=8080"`
	PublicURL      string   `env:"PUBLIC_URL"`
	LogLevel       string   `env:"LOG_LEVEL,default=info"`
	CORSOrigins    []string `env:"CORS_ORIGINS"`

	// Bearer tokens accepted on /v1 routes. Auth is disabled when empty.
	APIKeys         []string      `env:"API_KEYS"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX,default=120"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`

	// Submission lifecycle
	SubmitMaxAttempts   int           `env:"SUBMIT_MAX_ATTEMPTS,default=5"`
	SubmitWaitTimeout   time.Duration `env:"SUBMIT_WAIT_TIMEOUT,default=20s"`
	TxTimeout           time.Duration `env:"TX_TIMEOUT,default=120s"`
	ExpiryGrace         time.Duration `env:"TX_EXPIRY_GRACE,default=15s"`
	MonitorPollInterval time.Duration `env:"MONITOR_POLL_INTERVAL,default=2s"`
	BaseFee             int64         `env:"BASE_FEE,default=100"`
	MaxFee              int64         `env:"MAX_FEE,default=10000"`

	// Horizon request handling
	HorizonTimeout      time.Duration `env:"HORIZON_TIMEOUT,default=10s"`
	HorizonRetries      int           `env:"HORIZON_RETRIES,default=3"`
	HorizonRetryBackoff time.Duration `env:"HORIZON_RETRY_BACKOFF,default=250ms"`
	CacheTTL            time.Duration `env:"CACHE_TTL,default=24h"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StellarNetwork != "testnet" && c.StellarNetwork != "mainnet" {
		return fmt.Errorf("STELLAR_NETWORK must be 'testnet' or 'mainnet', got %q", c.StellarNetwork)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.SubmitMaxAttempts < 1 {
		return fmt.Errorf("SUBMIT_MAX_ATTEMPTS must be at least 1, got %d", c.SubmitMaxAttempts)
	}
	if c.BaseFee < txnbuild.MinBaseFee {
		return fmt.Errorf("BASE_FEE must be at least %d stroops, got %d", txnbuild.MinBaseFee, c.BaseFee)
	}
	if c.MaxFee < c.BaseFee {
		return fmt.Errorf("MAX_FEE (%d) must not be lower than BASE_FEE (%d)", c.MaxFee, c.BaseFee)
	}
	if c.TxTimeout < 10*time.Second {
		return fmt.Errorf("TX_TIMEOUT must be at least 10s, got %s", c.TxTimeout)
	}
	if c.MonitorPollInterval <= 0 {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be positive")
	}
	if c.HorizonRetries < 0 {
		return fmt.Errorf("HORIZON_RETRIES must not be negative")
	}
	if len(c.APIKeys) > 0 && c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive when API_KEYS is set")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

func (c *Config) NetworkPassphrase() string {
	if c.StellarNetwork == "mainnet" {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

func (c *Config) DefaultHorizonURL() string {
	if c.HorizonURL != "" {
		return c.HorizonURL
	}
	if c.StellarNetwork == "mainnet" {
		return "https://horizon.stellar.org"
	}
	return "https://horizon-testnet.stellar.org"
}
