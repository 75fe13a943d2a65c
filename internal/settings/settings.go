// Package settings provides the runtime key-value settings store.
//
// Settings live in the settings table in PostgreSQL and are seeded once from
// environment defaults at first boot. Values changed at runtime (through the
// settings API) survive restarts; environment variables only matter for keys
// that have never been written.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/donnabot/donna/internal/log"
)

// Sentinel errors for settings operations.
var (
	ErrNotFound   = errors.New("setting not found")
	ErrUnknownKey = errors.New("unknown setting key")
)

// Well-known setting keys. PUT /config rejects anything outside this set.
const (
	KeyPersonaName        = "persona.name"
	KeySystemPrompt       = "persona.system_prompt"
	KeyGroupMentionOnly   = "chat.group_mention_only"
	KeyContextWindow      = "chat.context_window"
	KeyIngestHistory      = "rag.ingest_history"
	KeyRetrievalTopK      = "rag.top_k"
	KeyPaperlessSync      = "paperless.sync_enabled"
	KeyPaperlessCursor    = "paperless.last_sync"
	KeyWhatsAppEnabled    = "whatsapp.enabled"
	KeyReplyToVoiceNotes  = "chat.voice_reply"
	KeyReplyToImages      = "chat.image_reply"
	KeyReplyToDocuments   = "chat.document_reply"
)

// knownKeys is the full set of keys the store accepts.
var knownKeys = map[string]bool{
	KeyPersonaName:       true,
	KeySystemPrompt:      true,
	KeyGroupMentionOnly:  true,
	KeyContextWindow:     true,
	KeyIngestHistory:     true,
	KeyRetrievalTopK:     true,
	KeyPaperlessSync:     true,
	KeyPaperlessCursor:   true,
	KeyWhatsAppEnabled:   true,
	KeyReplyToVoiceNotes: true,
	KeyReplyToImages:     true,
	KeyReplyToDocuments:  true,
}

// KnownKey reports whether key is accepted by the store.
func KnownKey(key string) bool { return knownKeys[key] }

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed settings store with an in-memory cache.
// All reads are served from the cache after the first load; Put writes
// through to the database and updates the cache.
type Store struct {
	db     Querier
	logger log.Logger

	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

// NewStore creates a settings store backed by db.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger, cache: make(map[string]string)}
}

// load populates the cache from the database. Callers must not hold mu.
func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	rows, err := s.db.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("failed to scan setting: %w", err)
		}
		cache[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	s.cache = cache
	s.loaded = true
	s.logger.Debug("settings cache loaded", "count", len(cache))
	return nil
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.load(ctx); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// GetOr returns the value for key, or fallback when the key is absent.
func (s *Store) GetOr(ctx context.Context, key, fallback string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return v
}

// Bool returns the value for key parsed as a boolean; fallback on absence
// or parse failure.
func (s *Store) Bool(ctx context.Context, key string, fallback bool) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// Int returns the value for key parsed as an integer; fallback on absence
// or parse failure.
func (s *Store) Int(ctx context.Context, key string, fallback int) int {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// Put upserts key to value. Unknown keys are rejected with ErrUnknownKey.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if !KnownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := s.load(ctx); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	s.logger.Info("setting updated", "key", key)
	return nil
}

// PutAll applies a batch of updates. Validation happens before any write, so
// a batch with an unknown key changes nothing.
func (s *Store) PutAll(ctx context.Context, values map[string]string) error {
	for k := range values {
		if !KnownKey(k) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
	}
	for k, v := range values {
		if err := s.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// All returns a copy of every stored setting.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out, nil
}

// LastSync returns the Paperless sync cursor, zero time when unset.
func (s *Store) LastSync(ctx context.Context) time.Time {
	v, err := s.Get(ctx, KeyPaperlessCursor)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetLastSync stores the Paperless sync cursor.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.Put(ctx, KeyPaperlessCursor, t.UTC().Format(time.RFC3339))
}
