package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"mailcast/internal/providers/registry"
	"mailcast/internal/store/pg"
)

type Server struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

type Postgres struct {
	DBDSN             string        `envconfig:"DB_DSN" required:"true"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DBConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
}

func (p Postgres) PoolOptions() pg.PoolOptions {
	return pg.PoolOptions{
		MaxConns:        p.DBMaxConns,
		MinConns:        p.DBMinConns,
		MaxConnLifetime: p.DBMaxConnLifetime,
		MaxConnIdleTime: p.DBMaxConnIdleTime,
		ConnectTimeout:  p.DBConnectTimeout,
	}
}

type AWS struct {
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type Poller struct {
	SQSWaitTime   int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs    int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"900"`
}

// Provider selects and tunes the outbound email adapter.
type Provider struct {
	EmailProvider   string        `envconfig:"EMAIL_PROVIDER" default:"sendgrid"`
	EmailAPIKey     string        `envconfig:"EMAIL_API_KEY" required:"true"`
	EmailBaseURL    string        `envconfig:"EMAIL_BASE_URL"`
	EmailRPS        float64       `envconfig:"EMAIL_RPS_PER_POD" default:"50"`
	EmailBurst      int           `envconfig:"EMAIL_BURST" default:"100"`
	BreakerFailures uint32        `envconfig:"EMAIL_BREAKER_FAILURES" default:"5"`
	BreakerOpenFor  time.Duration `envconfig:"EMAIL_BREAKER_OPEN_FOR" default:"30s"`

	AppURL           string `envconfig:"APP_URL" required:"true"`
	BatchSize        int    `envconfig:"BATCH_SIZE" default:"1000"`
	BatchConcurrency int    `envconfig:"BATCH_CONCURRENCY" default:"0"`
}

func (p Provider) RegistryOptions() registry.Options {
	return registry.Options{
		Provider:        p.EmailProvider,
		APIKey:          p.EmailAPIKey,
		BaseURL:         p.EmailBaseURL,
		RPS:             p.EmailRPS,
		Burst:           p.EmailBurst,
		BreakerFailures: p.BreakerFailures,
		BreakerOpenFor:  p.BreakerOpenFor,
	}
}

// Schedule tunes the poll that releases scheduled campaigns once they are due.
type Schedule struct {
	SchedulePollInterval time.Duration `envconfig:"SCHEDULE_POLL_INTERVAL" default:"30s"`
	ScheduleReleaseHold  time.Duration `envconfig:"SCHEDULE_RELEASE_HOLD" default:"15m"`
}

type APIConfig struct {
	Server
	Postgres
	AWS
	Provider
	Schedule

	// empty: send jobs run in-process instead of through SQS
	CampaignQueueURL string `envconfig:"CAMPAIGN_QUEUE_URL"`
}

type WorkerConfig struct {
	Server
	Postgres
	AWS
	Poller
	Provider
	Schedule

	CampaignQueueURL  string `envconfig:"CAMPAIGN_QUEUE_URL" required:"true"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
}

type WebhookConfig struct {
	Server
	Postgres
	AWS

	// empty: events are applied inline
	WebhookQueueURL string `envconfig:"WEBHOOK_QUEUE_URL"`

	// Webhook signature verification; empty disables the check for that provider.
	SendGridPublicKey   string `envconfig:"SENDGRID_WEBHOOK_PUBLIC_KEY"`
	ResendWebhookSecret string `envconfig:"RESEND_WEBHOOK_SECRET"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

type WebhookProcessorConfig struct {
	Server
	Postgres
	AWS
	Poller

	WebhookQueueURL   string `envconfig:"WEBHOOK_QUEUE_URL" required:"true"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"8"`
}

type MockProviderConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// FailRate is the fraction of sends answered with a 500.
	FailRate float64       `envconfig:"MOCK_FAIL_RATE" default:"0"`
	Latency  time.Duration `envconfig:"MOCK_LATENCY" default:"0s"`

	// WebhookURL, when set, receives SendGrid-style delivered/open events for each accepted send.
	WebhookURL   string        `envconfig:"MOCK_WEBHOOK_URL"`
	WebhookDelay time.Duration `envconfig:"MOCK_WEBHOOK_DELAY" default:"500ms"`
}

// loadDotEnv reads ENV_FILE (default .env) when present. Real environment
// variables always win over file values.
func loadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("env file not loaded", "path", path, "err", err)
	}
}

func load[T any]() T {
	loadDotEnv()
	var cfg T
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadAPI() APIConfig { return load[APIConfig]() }

func LoadWorker() WorkerConfig { return load[WorkerConfig]() }

func LoadWebhook() WebhookConfig { return load[WebhookConfig]() }

func LoadWebhookProcessor() WebhookProcessorConfig { return load[WebhookProcessorConfig]() }

func LoadMockProvider() MockProviderConfig { return load[MockProviderConfig]() }
