// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (runtime override)
//  2. Config file (./nestora.yaml or /etc/nestora/nestora.yaml)
//  3. Default values
//
// Categories:
//   - Agent: model provider/name, round cap, timeouts, score threshold
//   - Sessions: Redis connection, TTL policy
//   - Storage: PostgreSQL connection (inventory, knowledge, leads)
//   - Server: listen address, CORS origins
//
// Sensitive fields (passwords) are masked in MarshalJSON and String.
// Validation is fail-fast with sentinel errors checked via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidRoundCap indicates the per-turn round cap is out of range.
	ErrInvalidRoundCap = errors.New("invalid round cap")

	// ErrInvalidScoreThreshold indicates the qualification threshold is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidSessionTTL indicates the session TTL is out of range.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidRedisAddr indicates the Redis address is missing or malformed.
	ErrInvalidRedisAddr = errors.New("invalid redis address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRateLimit indicates the model rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrMissingAPIKey indicates a required model API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

const (
	// DefaultRoundCap bounds model round-trips per turn. The loop exists
	// because one model call cannot both request data and use it; the cap
	// exists because an unbounded loop never terminates.
	DefaultRoundCap = 3

	// DefaultScoreThreshold is the minimum score for a qualified lead.
	DefaultScoreThreshold = 60

	// DefaultSessionTTL bounds session lifetime from creation.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON().
type Config struct {
	// Agent configuration
	Provider       string  `mapstructure:"provider" json:"provider"`
	ModelName      string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel  string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`
	RoundCap       int     `mapstructure:"round_cap" json:"round_cap"`
	ScoreThreshold int     `mapstructure:"score_threshold" json:"score_threshold"`

	// Per-call timeouts
	ModelTimeout time.Duration `mapstructure:"model_timeout" json:"model_timeout"`
	ToolTimeout  time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`

	// Lifetime tool-call cap per session, for abuse detection. 0 disables.
	LifetimeToolCallCap int `mapstructure:"lifetime_tool_call_cap" json:"lifetime_tool_call_cap"`

	// Shared model-call rate limit across all sessions. Zero rps disables.
	ModelRateRPS   float64 `mapstructure:"model_rate_rps" json:"model_rate_rps"`
	ModelRateBurst int     `mapstructure:"model_rate_burst" json:"model_rate_burst"`

	// Session store configuration
	RedisAddr         string        `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword     string        `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE
	RedisDB           int           `mapstructure:"redis_db" json:"redis_db"`
	SessionTTL        time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	SessionTTLSliding bool          `mapstructure:"session_ttl_sliding" json:"session_ttl_sliding"`

	// Contact normalization
	DefaultCountryCode string `mapstructure:"default_country_code" json:"default_country_code"`

	// PostgreSQL configuration (inventory, knowledge, leads)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("nestora")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/nestora")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"config_name", "nestora.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("round_cap", DefaultRoundCap)
	v.SetDefault("score_threshold", DefaultScoreThreshold)
	v.SetDefault("model_timeout", "45s")
	v.SetDefault("tool_timeout", "10s")
	v.SetDefault("lifetime_tool_call_cap", 200)
	v.SetDefault("model_rate_rps", 5.0)
	v.SetDefault("model_rate_burst", 10)

	// Session defaults
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_ttl", DefaultSessionTTL)
	v.SetDefault("session_ttl_sliding", false)
	v.SetDefault("default_country_code", "971")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nestora")
	v.SetDefault("postgres_password", "nestora_dev_password")
	v.SetDefault("postgres_db_name", "nestora")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	v.SetDefault("listen_addr", "127.0.0.1:8420")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the genkit plugin, not via viper;
// its presence is checked in Validate().
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "NESTORA_PROVIDER")
	mustBind("model_name", "NESTORA_MODEL_NAME")
	mustBind("listen_addr", "NESTORA_LISTEN_ADDR")
	mustBind("redis_addr", "NESTORA_REDIS_ADDR")
	mustBind("redis_password", "NESTORA_REDIS_PASSWORD")
	mustBind("postgres_host", "NESTORA_POSTGRES_HOST")
	mustBind("postgres_port", "NESTORA_POSTGRES_PORT")
	mustBind("postgres_user", "NESTORA_POSTGRES_USER")
	mustBind("postgres_password", "NESTORA_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "NESTORA_POSTGRES_DB_NAME")
	mustBind("session_ttl", "NESTORA_SESSION_TTL")
	mustBind("cors_origins", "NESTORA_CORS_ORIGINS")
}

// PostgresURL returns the connection URL for pgx and golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// FullModelName returns the provider-qualified model name for genkit.
// Example: "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return c.Provider + "/" + c.ModelName
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	return c.Provider + "/" + c.EmbedderModel
}

const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep two edge
// characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
