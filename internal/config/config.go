// Package config loads service configuration from a YAML file, a local .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transit provider names.
const (
	ProviderSeoul  = "seoul"
	ProviderGTFSRT = "gtfsrt"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
	Pattern   PatternConfig   `yaml:"pattern"`
	Transit   TransitConfig   `yaml:"transit"`
	Delay     DelayConfig     `yaml:"delay"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	Environment string `yaml:"environment" validate:"required"`

	// RateLimit is the per-user request budget per minute.
	RateLimit int `yaml:"rate_limit" validate:"min=1"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string `yaml:"-"`
	Issuer        string `yaml:"issuer"`
}

// PatternConfig holds the departure pattern tunables.
type PatternConfig struct {
	MorningWeekday string `yaml:"morning_weekday" validate:"required,clock"`
	MorningWeekend string `yaml:"morning_weekend" validate:"required,clock"`
	EveningWeekday string `yaml:"evening_weekday" validate:"required,clock"`
	EveningWeekend string `yaml:"evening_weekend" validate:"required,clock"`

	MaxSamples    int `yaml:"max_samples" validate:"min=5"`
	MatureSamples int `yaml:"mature_samples" validate:"min=5,ltefield=MaxSamples"`
	LookbackDays  int `yaml:"lookback_days" validate:"min=1"`
}

// TransitConfig selects and configures the live arrival provider.
type TransitConfig struct {
	Provider string `yaml:"provider" validate:"oneof=seoul gtfsrt"`

	Timeout    time.Duration `yaml:"timeout" validate:"min=0"`
	MaxRetries uint64        `yaml:"max_retries"`

	CacheTTL        time.Duration `yaml:"cache_ttl" validate:"min=0"`
	StaleIfErrorTTL time.Duration `yaml:"stale_if_error_ttl" validate:"min=0"`
	CacheSize       int           `yaml:"cache_size" validate:"min=0"`

	Seoul  SeoulConfig  `yaml:"seoul"`
	GTFSRT GTFSRTConfig `yaml:"gtfsrt"`
}

// SeoulConfig configures the Seoul realtime arrival API.
type SeoulConfig struct {
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string `yaml:"-"`
	PageSize int    `yaml:"page_size" validate:"min=0,max=100"`
}

// GTFSRTConfig configures a GTFS-Realtime TripUpdates feed.
type GTFSRTConfig struct {
	FeedURL      string              `yaml:"feed_url" validate:"omitempty,url"`
	APIKey       string              `yaml:"-"`
	APIKeyHeader string              `yaml:"api_key_header"`
	FeedTTL      time.Duration       `yaml:"feed_ttl" validate:"min=0"`
	Stops        map[string][]string `yaml:"stops"`
}

// DelayConfig configures the delay monitor and alternative finder.
type DelayConfig struct {
	Concurrency int `yaml:"concurrency" validate:"min=1,max=64"`
}

// PubSubConfig configures job intake and event publishing.
type PubSubConfig struct {
	ProjectID       string `yaml:"project_id"`
	Subscription    string `yaml:"subscription"`
	DepartureTopic  string `yaml:"departure_topic"`
	SuggestionTopic string `yaml:"suggestion_topic"`
}

// WorkerConfig configures the background job pool.
type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=64"`
	JobTimeout  time.Duration `yaml:"job_timeout" validate:"min=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			Environment: "development",
			RateLimit:   100,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1.0,
		},
		Auth: AuthConfig{
			Issuer: "commutepulse",
		},
		Pattern: PatternConfig{
			MorningWeekday: "08:00",
			MorningWeekend: "10:00",
			EveningWeekday: "18:30",
			EveningWeekend: "17:00",
			MaxSamples:     30,
			MatureSamples:  15,
			LookbackDays:   90,
		},
		Transit: TransitConfig{
			Provider:        ProviderSeoul,
			Timeout:         5 * time.Second,
			MaxRetries:      2,
			CacheTTL:        30 * time.Second,
			StaleIfErrorTTL: 5 * time.Minute,
			CacheSize:       1024,
			Seoul: SeoulConfig{
				PageSize: 20,
			},
			GTFSRT: GTFSRTConfig{
				APIKeyHeader: "x-api-key",
				FeedTTL:      15 * time.Second,
			},
		},
		Delay: DelayConfig{
			Concurrency: 4,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			JobTimeout:  2 * time.Minute,
		},
	}
}

// Load reads configuration from path (optional), then applies .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and provider requirements.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("clock", validateClock); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Transit.Provider == ProviderGTFSRT && c.Transit.GTFSRT.FeedURL == "" {
		return errors.New("invalid config: transit.gtfsrt.feed_url is required for the gtfsrt provider")
	}
	return nil
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("APP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing APP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	setString(&c.Server.Environment, "APP_ENV")
	if v := os.Getenv("REQUIRE_TLS"); v != "" {
		c.Server.RequireTLS = v == "true"
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")

	setString(&c.Transit.Provider, "TRANSIT_PROVIDER")
	setString(&c.Transit.Seoul.APIKey, "SEOUL_API_KEY")
	setString(&c.Transit.GTFSRT.APIKey, "GTFSRT_API_KEY")
	setString(&c.Transit.GTFSRT.FeedURL, "GTFSRT_FEED_URL")

	setString(&c.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&c.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")
	setString(&c.PubSub.DepartureTopic, "PUBSUB_DEPARTURE_TOPIC")
	setString(&c.PubSub.SuggestionTopic, "PUBSUB_SUGGESTION_TOPIC")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
