package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyPrefix = "donna:webhook:"
	// dedupTTL is how long an event ID blocks redelivery. Gateways retry
	// for minutes, not days; a day is comfortably past that.
	dedupTTL = 24 * time.Hour
)

// Setter is the subset of redis.Client the deduper uses.
type Setter interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Deduper makes webhook processing idempotent per event ID.
type Deduper struct {
	redis Setter
}

// NewDeduper creates a Deduper.
func NewDeduper(redis Setter) *Deduper {
	return &Deduper{redis: redis}
}

// Seen atomically claims eventID. It returns true when the event was
// already processed within the TTL.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	claimed, err := d.redis.SetNX(ctx, dedupKeyPrefix+eventID, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	return !claimed, nil
}
