package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for correctness.
// It returns the first error encountered, wrapped with a sentinel from
// config.go so callers can use errors.Is().
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY must be set for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY must be set for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host must be set for provider %q", ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be between 0.0 and 2.0)", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderDim < 1 || c.EmbedderDim > 4096 {
		return fmt.Errorf("%w: %d (must be between 1 and 4096)", ErrInvalidEmbedderDim, c.EmbedderDim)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be between 1 and 65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if _, err := url.Parse(c.RedisURL); err != nil || !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("%w: %q", ErrInvalidRedisURL, maskSecret(c.RedisURL))
	}

	if c.Qdrant.Host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidQdrantHost)
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: %d (must be between 1 and 65535)", ErrInvalidQdrantPort, c.Qdrant.Port)
	}

	if err := validateBaseURL(c.Gateway.BaseURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGatewayURL, err)
	}

	// Paperless is optional; only validate when configured.
	if c.Paperless.BaseURL != "" {
		if err := validateBaseURL(c.Paperless.BaseURL); err != nil {
			return fmt.Errorf("invalid paperless base URL: %w", err)
		}
		if c.Paperless.Token == "" {
			return fmt.Errorf("%w: PAPERLESS_TOKEN must be set when paperless.base_url is configured", ErrMissingAPIKey)
		}
	}

	return nil
}

// validateBaseURL checks that s is an absolute http(s) URL.
func validateBaseURL(s string) error {
	if s == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL host must not be empty")
	}
	return nil
}
