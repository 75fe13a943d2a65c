package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/donnabot/donna/db"
	"github.com/donnabot/donna/internal/assistant"
	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/cost"
	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/llm"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/paperless"
	"github.com/donnabot/donna/internal/plugin"
	"github.com/donnabot/donna/internal/rag"
	"github.com/donnabot/donna/internal/settings"
	"github.com/donnabot/donna/internal/webhook"
)

// Setup creates and initializes the application. On error everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	rdb, err := provideRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb

	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	a.Qdrant = qc

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	store := settings.NewStore(pool, logger)
	defaults, err := settings.LoadDefaults()
	if err != nil {
		return nil, fmt.Errorf("loading setting defaults: %w", err)
	}
	if err := store.Seed(ctx, defaults); err != nil {
		return nil, fmt.Errorf("seeding settings: %w", err)
	}
	a.Settings = store

	gw, err := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}
	a.Gateway = gw

	dim := cfg.EmbedderDim
	if dim <= 0 {
		dim = config.DefaultEmbedderDimension
	}
	ragStore := rag.NewStore(qc, embedder, cfg.Qdrant.Collection, uint64(dim), logger)
	if err := ragStore.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring vector collection: %w", err)
	}
	a.Store = ragStore
	a.Ingestor = rag.NewIngestor(ragStore, logger)

	a.Meter = cost.NewMeter(rdb, pool, logger)
	a.LLM = llm.New(g, cfg.FullModelName(), float64(cfg.Temperature), a.Meter, logger)
	a.Knowledge = rag.NewService(ragStore, a.LLM, logger)

	history := assistant.NewHistory(rdb, logger)
	a.Assistant = assistant.New(a.LLM, history, ragStore, a.Ingestor, store, logger)

	dedup := webhook.NewDeduper(rdb)
	a.Webhook = webhook.NewHandler(a.Assistant, gw, dedup, store, pool, cfg.Gateway.WebhookKey, logger)

	if err := providePlugins(a); err != nil {
		return nil, err
	}

	return a, nil
}

// provideOtelShutdown wires an OTLP trace exporter into Genkit's tracer
// provider. Must run before provideGenkit so the provider is ready.
// Returns a no-op cleanup when tracing is not configured.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if tc.Endpoint == "" {
		return func() {}
	}

	// SAFETY: os.Setenv is not concurrent-safe, but Setup runs exactly once
	// at startup before any goroutines are spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tc.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", tc.Endpoint,
		"service", tc.ServiceName,
		"environment", tc.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideRedis creates and pings the Redis client.
func provideRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return rdb, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	model := cfg.EmbedderModel
	if model == "" {
		model = config.DefaultGeminiEmbedderModel
	}

	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", model))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, model)
	}
}

// providePlugins builds the plugin registry. The WhatsApp plugin is always
// registered; Paperless only when its base URL is configured.
func providePlugins(a *App) error {
	reg := plugin.NewRegistry(a.Logger)

	if err := reg.Register(plugin.NewWhatsApp(a.Gateway, a.Settings, a.Logger)); err != nil {
		return fmt.Errorf("registering whatsapp plugin: %w", err)
	}

	if a.Config.PaperlessEnabled() {
		client, err := paperless.NewClient(a.Config.Paperless.BaseURL, a.Config.Paperless.Token, a.Logger)
		if err != nil {
			return fmt.Errorf("creating paperless client: %w", err)
		}
		interval := time.Duration(a.Config.Paperless.SyncInterval) * time.Minute
		syncer := paperless.NewSyncer(client, a.Ingestor, a.Settings, interval, a.Logger)
		if err := reg.Register(plugin.NewPaperless(syncer, a.Settings, a.Logger)); err != nil {
			return fmt.Errorf("registering paperless plugin: %w", err)
		}
	}

	a.Plugins = reg
	return nil
}
