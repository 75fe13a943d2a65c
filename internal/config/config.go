// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.donna/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, embedder
//   - Storage: PostgreSQL and Redis connections (see storage.go)
//   - RAG: Qdrant connection and collection
//   - Gateway: WAHA base URL, API key, session name
//   - Paperless: optional Paperless-ngx document sync
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON and
// never logged. Validation lives in validation.go and is fail-fast.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRedisURL indicates the Redis URL cannot be parsed.
	ErrInvalidRedisURL = errors.New("invalid Redis URL")

	// ErrInvalidQdrantHost indicates the Qdrant host is invalid.
	ErrInvalidQdrantHost = errors.New("invalid Qdrant host")

	// ErrInvalidQdrantPort indicates the Qdrant port is out of range.
	ErrInvalidQdrantPort = errors.New("invalid Qdrant port")

	// ErrInvalidGatewayURL indicates the WAHA gateway base URL is invalid.
	ErrInvalidGatewayURL = errors.New("invalid gateway base URL")

	// ErrInvalidEmbedderDim indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDim = errors.New("invalid embedder dimension")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension matches the Qdrant collection created at boot.
	DefaultEmbedderDimension = 768
)

// GatewayConfig holds the WAHA gateway connection settings.
type GatewayConfig struct {
	BaseURL    string `mapstructure:"base_url" json:"base_url"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Session    string `mapstructure:"session" json:"session"`
	WebhookKey string `mapstructure:"webhook_key" json:"webhook_key"` // SENSITIVE: shared secret for inbound webhooks
}

// QdrantConfig holds the vector database connection settings.
type QdrantConfig struct {
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	UseTLS     bool   `mapstructure:"use_tls" json:"use_tls"`
	Collection string `mapstructure:"collection" json:"collection"`
}

// PaperlessConfig holds the optional Paperless-ngx integration settings.
type PaperlessConfig struct {
	BaseURL      string `mapstructure:"base_url" json:"base_url"`
	Token        string `mapstructure:"token" json:"token"` // SENSITIVE: masked in MarshalJSON
	SyncInterval int    `mapstructure:"sync_interval_minutes" json:"sync_interval_minutes"`
}

// TracingConfig holds the optional OTLP trace exporter settings.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama", "openai"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim   int     `mapstructure:"embedder_dim" json:"embedder_dim"`
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
	RedisURL         string `mapstructure:"redis_url" json:"redis_url"` // SENSITIVE: may embed credentials

	// External services
	Qdrant    QdrantConfig    `mapstructure:"qdrant" json:"qdrant"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Paperless PaperlessConfig `mapstructure:"paperless" json:"paperless"`
	Tracing   TracingConfig   `mapstructure:"tracing" json:"tracing"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".donna")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("embedder_dim", DefaultEmbedderDimension)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "donna")
	v.SetDefault("postgres_password", "donna_dev_password")
	v.SetDefault("postgres_db_name", "donna")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis_url", "redis://localhost:6379/0")

	// Qdrant defaults
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "donna")

	// WAHA gateway defaults
	v.SetDefault("gateway.base_url", "http://localhost:3000")
	v.SetDefault("gateway.session", "default")

	// Paperless defaults (disabled unless base_url is set)
	v.SetDefault("paperless.sync_interval_minutes", 30)

	// HTTP server defaults
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	// Tracing defaults
	v.SetDefault("tracing.service_name", "donna")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// provider plugins, not via viper; validation checks their presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DONNA_PROVIDER")
	mustBind("model_name", "DONNA_MODEL_NAME")
	mustBind("embedder_model", "DONNA_EMBEDDER_MODEL")
	mustBind("ollama_host", "DONNA_OLLAMA_HOST")

	mustBind("redis_url", "REDIS_URL")

	mustBind("qdrant.host", "QDRANT_HOST")
	mustBind("qdrant.port", "QDRANT_PORT")
	mustBind("qdrant.api_key", "QDRANT_API_KEY")
	mustBind("qdrant.collection", "QDRANT_COLLECTION")

	mustBind("gateway.base_url", "WAHA_BASE_URL")
	mustBind("gateway.api_key", "WAHA_API_KEY")
	mustBind("gateway.session", "WAHA_SESSION")
	mustBind("gateway.webhook_key", "WAHA_WEBHOOK_KEY")

	mustBind("paperless.base_url", "PAPERLESS_BASE_URL")
	mustBind("paperless.token", "PAPERLESS_TOKEN")

	mustBind("listen_addr", "DONNA_LISTEN_ADDR")
	mustBind("trust_proxy", "DONNA_TRUST_PROXY")
	mustBind("rate_burst", "DONNA_RATE_BURST")

	mustBind("tracing.endpoint", "OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisURL = maskSecret(a.RedisURL)
	a.Qdrant.APIKey = maskSecret(a.Qdrant.APIKey)
	a.Gateway.APIKey = maskSecret(a.Gateway.APIKey)
	a.Gateway.WebhookKey = maskSecret(a.Gateway.WebhookKey)
	a.Paperless.Token = maskSecret(a.Paperless.Token)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// PaperlessEnabled reports whether the Paperless-ngx sync is configured.
func (c *Config) PaperlessEnabled() bool {
	return c.Paperless.BaseURL != ""
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
