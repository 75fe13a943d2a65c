package paperless

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/rag"
	"github.com/donnabot/donna/internal/settings"
)

// Lister is the Paperless API surface the syncer needs. *Client satisfies
// this.
type Lister interface {
	Documents(ctx context.Context, modifiedAfter time.Time) ([]Document, error)
}

// Ingestor writes document text into the knowledge base. *rag.Ingestor
// satisfies this.
type Ingestor interface {
	IngestDocument(ctx context.Context, source, docID, title, text string, ts time.Time) (int, error)
}

// Cursor persists sync progress between runs. *settings.Store satisfies
// this.
type Cursor interface {
	Bool(ctx context.Context, key string, fallback bool) bool
	LastSync(ctx context.Context) time.Time
	SetLastSync(ctx context.Context, t time.Time) error
}

// Syncer periodically pulls new and updated documents into the knowledge
// base, tracking the last synced modification time in settings.
type Syncer struct {
	client   Lister
	ingestor Ingestor
	cursor   Cursor
	interval time.Duration
	logger   log.Logger
}

// NewSyncer creates a Syncer running every interval.
func NewSyncer(client Lister, ingestor Ingestor, cursor Cursor, interval time.Duration, logger log.Logger) *Syncer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Syncer{
		client:   client,
		ingestor: ingestor,
		cursor:   cursor,
		interval: interval,
		logger:   logger,
	}
}

// Run syncs once immediately and then on every tick until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("document sync failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("document sync failed", "error", err)
			}
		}
	}
}

// SyncOnce ingests every document modified since the stored cursor. The
// cursor advances per document, so a failure mid-run resumes where it
// stopped.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if !s.cursor.Bool(ctx, settings.KeyPaperlessSync, true) {
		s.logger.Debug("document sync disabled, skipping")
		return nil
	}

	since := s.cursor.LastSync(ctx)
	docs, err := s.client.Documents(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	synced := 0
	for _, doc := range docs {
		// Documents without extracted text (not yet OCRed) are skipped,
		// but the cursor still advances past them or they would be
		// re-fetched on every tick.
		if doc.Content != "" {
			if _, err := s.ingestor.IngestDocument(ctx, rag.SourcePaperless, strconv.Itoa(doc.ID), doc.Title, doc.Content, doc.Modified); err != nil {
				return fmt.Errorf("failed to ingest document %d %q: %w", doc.ID, doc.Title, err)
			}
			synced++
		}
		if err := s.cursor.SetLastSync(ctx, doc.Modified); err != nil {
			s.logger.Warn("failed to advance sync cursor", "error", err)
		}
	}

	s.logger.Info("document sync completed", "documents", synced, "since", since)
	return nil
}
