// Package config loads dialoggraph configuration from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIALOGGRAPH_"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	Model   ModelConfig   `yaml:"model"`
	Store   StoreConfig   `yaml:"store"`
	Actions ActionsConfig `yaml:"actions"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig bounds workflow execution.
type EngineConfig struct {
	MaxSteps       int           `yaml:"max_steps"`
	NodeTimeout    time.Duration `yaml:"node_timeout"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	ActionTimeout  time.Duration `yaml:"action_timeout"`
}

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// ModelConfig selects the chat model used for extraction.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	// Name is the provider's model name. Empty selects the adapter default.
	Name string `yaml:"name"`
	// APIKey is only read from the provider's environment variable.
	APIKey string `yaml:"-"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// StoreConfig selects the checkpoint store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// DSN is the MySQL data source name.
	DSN   string      `yaml:"dsn"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis store and the distributed thread lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Prefix namespaces keys as "<prefix>:thread:<id>" and "<prefix>:lock:<id>".
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
	// Lock enables the Redis lock so several replicas can share threads.
	Lock    bool          `yaml:"lock"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// ActionsConfig configures the side-effecting action handlers.
type ActionsConfig struct {
	Google  GoogleConfig  `yaml:"google"`
	Webhook WebhookConfig `yaml:"webhook"`
	Retry   RetryConfig   `yaml:"retry"`
}

// GoogleConfig holds the OAuth client and user token for Gmail and Calendar.
// Email and meeting actions are disabled unless all three secrets are set.
type GoogleConfig struct {
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	RefreshToken    string        `yaml:"refresh_token"`
	Sender          string        `yaml:"sender"`
	TimeZone        string        `yaml:"time_zone"`
	MeetingDuration time.Duration `yaml:"meeting_duration"`
}

// Enabled reports whether Google credentials are configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" || g.ClientSecret != "" || g.RefreshToken != ""
}

// WebhookConfig configures delivery of invoices and unrouted actions.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// RetryConfig configures retries of transient action failures. MaxAttempts
// of 1 disables retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// TracingConfig enables OpenTelemetry spans for workflow events, exported
// over OTLP/HTTP.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	// Endpoint is the full OTLP traces URL. Empty defers to the standard
	// OTEL_EXPORTER_OTLP_* variables.
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			MaxSteps:       32,
			NodeTimeout:    60 * time.Second,
			ExtractTimeout: 20 * time.Second,
			ActionTimeout:  30 * time.Second,
		},
		Model: ModelConfig{Provider: ProviderOpenAI},
		Store: StoreConfig{
			Driver: DriverMemory,
			Path:   "dialoggraph.db",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "dialoggraph",
				LockTTL: 30 * time.Second,
			},
		},
		Actions: ActionsConfig{
			Google:  GoogleConfig{MeetingDuration: time.Hour},
			Webhook: WebhookConfig{Timeout: 10 * time.Second},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
		},
		Tracing: TracingConfig{ServiceName: "dialoggraph"},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str(EnvPrefix+"ADDR", &c.Server.Addr)
	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Log.Format)
	integer(EnvPrefix+"MAX_STEPS", &c.Engine.MaxSteps)
	dur(EnvPrefix+"EXTRACT_TIMEOUT", &c.Engine.ExtractTimeout)
	dur(EnvPrefix+"ACTION_TIMEOUT", &c.Engine.ActionTimeout)
	str(EnvPrefix+"MODEL_PROVIDER", &c.Model.Provider)
	str(EnvPrefix+"MODEL_NAME", &c.Model.Name)
	str(EnvPrefix+"STORE_DRIVER", &c.Store.Driver)
	str(EnvPrefix+"STORE_PATH", &c.Store.Path)
	str(EnvPrefix+"STORE_DSN", &c.Store.DSN)
	str(EnvPrefix+"REDIS_ADDR", &c.Store.Redis.Addr)
	str(EnvPrefix+"REDIS_PASSWORD", &c.Store.Redis.Password)
	integer(EnvPrefix+"REDIS_DB", &c.Store.Redis.DB)
	boolean(EnvPrefix+"REDIS_LOCK", &c.Store.Redis.Lock)
	str(EnvPrefix+"WEBHOOK_URL", &c.Actions.Webhook.URL)
	str(EnvPrefix+"GOOGLE_CLIENT_ID", &c.Actions.Google.ClientID)
	str(EnvPrefix+"GOOGLE_CLIENT_SECRET", &c.Actions.Google.ClientSecret)
	str(EnvPrefix+"GOOGLE_REFRESH_TOKEN", &c.Actions.Google.RefreshToken)
	str(EnvPrefix+"GOOGLE_SENDER", &c.Actions.Google.Sender)
	boolean(EnvPrefix+"TRACING", &c.Tracing.Enabled)
	str(EnvPrefix+"OTLP_ENDPOINT", &c.Tracing.Endpoint)

	switch c.Model.Provider {
	case ProviderAnthropic:
		str("ANTHROPIC_API_KEY", &c.Model.APIKey)
	case ProviderOpenAI:
		str("OPENAI_API_KEY", &c.Model.APIKey)
	case ProviderGoogle:
		str("GEMINI_API_KEY", &c.Model.APIKey)
		if c.Model.APIKey == "" {
			str("GOOGLE_API_KEY", &c.Model.APIKey)
		}
	}
	str(EnvPrefix+"MODEL_API_KEY", &c.Model.APIKey)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be positive"))
	}
	if c.Engine.ExtractTimeout <= 0 || c.Engine.ActionTimeout <= 0 {
		errs = append(errs, errors.New("engine timeouts must be positive"))
	}
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("model.provider %q is not one of anthropic, openai, google", c.Model.Provider))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case DriverMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for mysql"))
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, sqlite, mysql, redis", c.Store.Driver))
	}
	if c.Store.Redis.Lock && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr is required when store.redis.lock is set"))
	}
	if c.Actions.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("actions.retry.max_attempts must be at least 1"))
	}
	if c.Actions.Google.Enabled() {
		g := c.Actions.Google
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			errs = append(errs, errors.New("actions.google needs client_id, client_secret and refresh_token"))
		}
		if g.Sender == "" {
			errs = append(errs, errors.New("actions.google.sender is required"))
		}
		if g.TimeZone != "" {
			if _, err := time.LoadLocation(g.TimeZone); err != nil {
				errs = append(errs, fmt.Errorf("actions.google.time_zone: %w", err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
