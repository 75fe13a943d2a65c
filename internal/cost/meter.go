package cost

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/donnabot/donna/internal/log"
)

const (
	usageKeyPrefix = "donna:usage:"
	modelsSetKey   = "donna:usage:models"
)

// Counters is the subset of redis.Client the meter uses for running totals.
type Counters interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HIncrByFloat(ctx context.Context, key, field string, incr float64) *redis.FloatCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Recorder is the subset of pgxpool.Pool the meter uses for the event log.
type Recorder interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Usage is the accumulated spend for one model.
type Usage struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Meter accounts every model call: running per-model counters in Redis and
// an append-only usage_events row in PostgreSQL.
type Meter struct {
	counters Counters
	db       Recorder
	logger   log.Logger
}

// NewMeter creates a cost meter.
func NewMeter(counters Counters, db Recorder, logger log.Logger) *Meter {
	return &Meter{counters: counters, db: db, logger: logger}
}

// Record accounts one model call. Unknown models are metered at zero price
// but their tokens still count. Metering failures are logged, not returned;
// a broken meter must never fail the call it measures.
func (m *Meter) Record(ctx context.Context, model, operation string, usage *ai.GenerationUsage) {
	if usage == nil {
		return
	}

	_, _, total := Compute(usage, ResolvePricing(model))

	key := usageKeyPrefix + model
	if err := m.counters.SAdd(ctx, modelsSetKey, model).Err(); err != nil {
		m.logger.Warn("failed to track model in usage set", "model", model, "error", err)
	}
	if err := m.counters.HIncrBy(ctx, key, "input_tokens", int64(usage.InputTokens)).Err(); err != nil {
		m.logger.Warn("failed to increment input tokens", "model", model, "error", err)
	}
	if err := m.counters.HIncrBy(ctx, key, "output_tokens", int64(usage.OutputTokens)).Err(); err != nil {
		m.logger.Warn("failed to increment output tokens", "model", model, "error", err)
	}
	if total > 0 {
		if err := m.counters.HIncrByFloat(ctx, key, "cost_usd", total).Err(); err != nil {
			m.logger.Warn("failed to increment cost", "model", model, "error", err)
		}
	}

	_, err := m.db.Exec(ctx, `
		INSERT INTO usage_events (id, model, operation, input_tokens, output_tokens, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), model, operation,
		int64(usage.InputTokens), int64(usage.OutputTokens), total, time.Now().UTC())
	if err != nil {
		m.logger.Warn("failed to record usage event", "model", model, "error", err)
	}

	m.logger.Debug("model call metered",
		"model", model,
		"operation", operation,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cost_usd", total)
}

// Totals returns per-model usage sorted by model name.
func (m *Meter) Totals(ctx context.Context) ([]Usage, error) {
	models, err := m.counters.SMembers(ctx, modelsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list metered models: %w", err)
	}
	sort.Strings(models)

	out := make([]Usage, 0, len(models))
	for _, model := range models {
		fields, err := m.counters.HGetAll(ctx, usageKeyPrefix+model).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s: %w", model, err)
		}
		u := Usage{Model: model}
		u.InputTokens, _ = strconv.ParseInt(fields["input_tokens"], 10, 64)
		u.OutputTokens, _ = strconv.ParseInt(fields["output_tokens"], 10, 64)
		u.CostUSD, _ = strconv.ParseFloat(fields["cost_usd"], 64)
		out = append(out, u)
	}
	return out, nil
}
