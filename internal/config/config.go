package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment. Defaults are tuned for local
// development; production deployments override via BANKCORE_* variables.
type Config struct {
	HTTPAddr    string `env:"BANKCORE_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"BANKCORE_METRICS_ADDR" envDefault:":9090"`

	// DatabasePath selects the SQLite file. Empty means the in-memory store,
	// used by tests and throwaway environments.
	DatabasePath string `env:"BANKCORE_DATABASE_PATH"`

	SigningSecret string `env:"BANKCORE_SIGNING_SECRET" envDefault:"dev-signing-secret"`

	// AuditWebhookURL, when set, mirrors every event to an external audit
	// endpoint behind a circuit breaker.
	AuditWebhookURL string `env:"BANKCORE_AUDIT_WEBHOOK_URL"`

	LockTimeout                time.Duration `env:"BANKCORE_LOCK_TIMEOUT" envDefault:"5s"`
	VelocityBlockDuration      time.Duration `env:"BANKCORE_VELOCITY_BLOCK_DURATION" envDefault:"30m"`
	HoldTTL                    time.Duration `env:"BANKCORE_HOLD_TTL" envDefault:"72h"`
	IdempotencyTTL             time.Duration `env:"BANKCORE_IDEMPOTENCY_TTL" envDefault:"24h"`
	SweepInterval              time.Duration `env:"BANKCORE_SWEEP_INTERVAL" envDefault:"1m"`
	AllowProvisionalSettlement bool          `env:"BANKCORE_ALLOW_PROVISIONAL_SETTLEMENT" envDefault:"true"`

	EventBufferSize     int `env:"BANKCORE_EVENT_BUFFER_SIZE" envDefault:"256"`
	NotificationWorkers int `env:"BANKCORE_NOTIFICATION_WORKERS" envDefault:"4"`

	ShutdownTimeout time.Duration `env:"BANKCORE_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	LogLevel string `env:"BANKCORE_LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.EventBufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got %d", cfg.EventBufferSize)
	}
	if cfg.NotificationWorkers <= 0 {
		return nil, fmt.Errorf("notification workers must be positive, got %d", cfg.NotificationWorkers)
	}
	return cfg, nil
}
