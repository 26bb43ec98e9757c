package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type App struct {
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	InternalToken string `envconfig:"INTERNAL_API_TOKEN"`

	ServiceTitan ServiceTitan
	Retry        Retry
}

type ServiceTitan struct {
	BaseURL      string        `envconfig:"SERVICETITAN_BASE_URL" default:"https://api.servicetitan.io"`
	AuthURL      string        `envconfig:"SERVICETITAN_AUTH_URL" default:"https://auth.servicetitan.io/connect/token"`
	TenantID     string        `envconfig:"SERVICETITAN_TENANT_ID"`
	ClientID     string        `envconfig:"SERVICETITAN_CLIENT_ID"`
	ClientSecret string        `envconfig:"SERVICETITAN_CLIENT_SECRET"`
	AppKey       string        `envconfig:"SERVICETITAN_APP_KEY"`
	Timeout      time.Duration `envconfig:"SERVICETITAN_TIMEOUT" default:"10s"`
}

// Retry controls the error-ledger retry scheduler. Backoff is
// base * 2^retry_count, capped; these are operational knobs, not behavior.
type Retry struct {
	BackoffBase  time.Duration `envconfig:"RETRY_BACKOFF_BASE" default:"30s"`
	BackoffCap   time.Duration `envconfig:"RETRY_BACKOFF_CAP" default:"24h"`
	MaxRetries   int           `envconfig:"RETRY_MAX_RETRIES" default:"5"`
	PollInterval time.Duration `envconfig:"RETRY_POLL_INTERVAL" default:"15s"`
	BatchSize    int           `envconfig:"RETRY_BATCH_SIZE" default:"20"`
	LeaseTTL     time.Duration `envconfig:"RETRY_LEASE_TTL" default:"5m"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
