package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes Validate with the
// ollama provider (no API key required).
func validConfig() *Config {
	return &Config{
		Provider:        ProviderOllama,
		OllamaHost:      "http://localhost:11434",
		ModelName:       "llama3.3",
		Temperature:     0.7,
		EmbedderModel:   "nomic-embed-text",
		EmbedderDim:     768,
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresUser:    "donna",
		PostgresDBName:  "donna",
		PostgresSSLMode: "disable",
		RedisURL:        "redis://localhost:6379/0",
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "donna",
		},
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:3000",
			Session: "default",
		},
		ListenAddr: "127.0.0.1:8080",
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "negative temperature",
			mutate:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "embedder dimension zero",
			mutate:  func(c *Config) { c.EmbedderDim = 0 },
			wantErr: ErrInvalidEmbedderDim,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "bad ssl mode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "yes" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
		{
			name:    "bad redis url",
			mutate:  func(c *Config) { c.RedisURL = "localhost:6379" },
			wantErr: ErrInvalidRedisURL,
		},
		{
			name:    "empty qdrant host",
			mutate:  func(c *Config) { c.Qdrant.Host = "" },
			wantErr: ErrInvalidQdrantHost,
		},
		{
			name:    "qdrant port out of range",
			mutate:  func(c *Config) { c.Qdrant.Port = 0 },
			wantErr: ErrInvalidQdrantPort,
		},
		{
			name:    "gateway url without scheme",
			mutate:  func(c *Config) { c.Gateway.BaseURL = "localhost:3000" },
			wantErr: ErrInvalidGatewayURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want errors.Is(err, %v)", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePaperlessRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Paperless.BaseURL = "http://paperless:8000"
	cfg.Paperless.Token = ""

	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}

	cfg.Paperless.Token = "token-123"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with token = %v, want nil", err)
	}
}
