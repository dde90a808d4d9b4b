package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is empty because every field names its variable in full.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names shared with tests.
const (
	EnvAppEnv        = "PARCELPOINT_APP_ENV"
	EnvRemoteBaseURL = "PARCELPOINT_REMOTE_BASE_URL"
	EnvRemoteToken   = "PARCELPOINT_REMOTE_TOKEN"
	EnvRedisURL      = "PARCELPOINT_REDIS_URL"
	EnvGCPProjectID  = "PARCELPOINT_GCP_PROJECT_ID"
)

type Config struct {
	App    AppConfig
	Remote RemoteConfig
	Cache  CacheConfig
	Retry  RetryConfig
	Sweep  SweepConfig
	Redis  RedisConfig
	PubSub PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"PARCELPOINT_APP_ENV" required:"true"`
	LogLevel  string `envconfig:"PARCELPOINT_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"PARCELPOINT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RemoteConfig struct {
	BaseURL string        `envconfig:"PARCELPOINT_REMOTE_BASE_URL" required:"true"`
	Token   string        `envconfig:"PARCELPOINT_REMOTE_TOKEN" required:"true"`
	Timeout time.Duration `envconfig:"PARCELPOINT_REMOTE_TIMEOUT" default:"10s"`
}

type CacheConfig struct {
	TTL        time.Duration `envconfig:"PARCELPOINT_CACHE_TTL" default:"5m"`
	MaxEntries int           `envconfig:"PARCELPOINT_CACHE_MAX_ENTRIES" default:"256"`
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"PARCELPOINT_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"PARCELPOINT_RETRY_BASE_DELAY" default:"1s"`
	Exponential bool          `envconfig:"PARCELPOINT_RETRY_EXPONENTIAL" default:"true"`
}

type SweepConfig struct {
	Interval          time.Duration `envconfig:"PARCELPOINT_SWEEP_INTERVAL" default:"5m"`
	ProcessingTimeout time.Duration `envconfig:"PARCELPOINT_SWEEP_PROCESSING_TIMEOUT" default:"48h"`
	LockTTL           time.Duration `envconfig:"PARCELPOINT_SWEEP_LOCK_TTL" default:"10m"`
	OpsAddr           string        `envconfig:"PARCELPOINT_SWEEP_OPS_ADDR" default:":9090"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARCELPOINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PARCELPOINT_REDIS_ADDR"`
	Password     string        `envconfig:"PARCELPOINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARCELPOINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARCELPOINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARCELPOINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARCELPOINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARCELPOINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARCELPOINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type PubSubConfig struct {
	ProjectID                string `envconfig:"PARCELPOINT_GCP_PROJECT_ID" required:"true"`
	NotificationSubscription string `envconfig:"PARCELPOINT_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"pp-notification-events"`
}
