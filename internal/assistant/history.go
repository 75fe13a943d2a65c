package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/donnabot/donna/internal/log"
)

const (
	historyKeyPrefix = "donna:history:"
	// historyTTL bounds how long an idle conversation keeps its context.
	historyTTL = 7 * 24 * time.Hour
)

// Turn is one message in a conversation, either side.
type Turn struct {
	Role string    `json:"role"` // "user" or "model"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Lists is the subset of redis.Client the history store uses.
type Lists interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// History keeps the recent turns of each chat in a capped Redis list.
type History struct {
	redis  Lists
	logger log.Logger
}

// NewHistory creates a History over the given Redis client.
func NewHistory(redis Lists, logger log.Logger) *History {
	return &History{redis: redis, logger: logger}
}

// Append records a turn and trims the list to the last maxTurns entries.
func (h *History) Append(ctx context.Context, chatID string, turn Turn, maxTurns int) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := historyKeyPrefix + chatID
	if err := h.redis.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	if maxTurns > 0 {
		if err := h.redis.LTrim(ctx, key, int64(-maxTurns), -1).Err(); err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	if err := h.redis.Expire(ctx, key, historyTTL).Err(); err != nil {
		h.logger.Warn("failed to set history TTL", "chat_id", chatID, "error", err)
	}
	return nil
}

// Recent returns up to maxTurns most recent turns, oldest first.
func (h *History) Recent(ctx context.Context, chatID string, maxTurns int) ([]Turn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}

	key := historyKeyPrefix + chatID
	entries, err := h.redis.LRange(ctx, key, int64(-maxTurns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	turns := make([]Turn, 0, len(entries))
	for _, e := range entries {
		var t Turn
		if err := json.Unmarshal([]byte(e), &t); err != nil {
			h.logger.Warn("skipping malformed history entry", "chat_id", chatID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}
