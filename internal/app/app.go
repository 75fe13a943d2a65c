// Package app wires the application together: configuration, storage
// clients, the AI stack, and the HTTP handlers.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/donnabot/donna/internal/assistant"
	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/cost"
	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/llm"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/plugin"
	"github.com/donnabot/donna/internal/rag"
	"github.com/donnabot/donna/internal/settings"
	"github.com/donnabot/donna/internal/webhook"
)

// App is the application container. Setup builds it; Close releases
// resources in reverse order of construction.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Qdrant *qdrant.Client

	Settings  *settings.Store
	Gateway   *gateway.Client
	Meter     *cost.Meter
	LLM       *llm.Client
	Store     *rag.Store
	Ingestor  *rag.Ingestor
	Knowledge *rag.Service
	Assistant *assistant.Assistant
	Webhook   *webhook.Handler
	Plugins   *plugin.Registry

	otelCleanup func()
}

// Close shuts down all resources. Safe to call on a partially built App.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Qdrant != nil {
		if err := a.Qdrant.Close(); err != nil {
			a.Logger.Warn("failed to close qdrant client", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
