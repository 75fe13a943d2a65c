package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/donnabot/donna/internal/log"
)

const (
	// minMessageLength filters out noise like "ok" and bare emoji before
	// it reaches the knowledge base.
	minMessageLength = 12

	// maxChunkSize is the upper bound on one ingested chunk, in runes.
	maxChunkSize = 1500

	// chunkOverlap is how many trailing runes of a chunk repeat at the
	// start of the next one, so sentences cut at a boundary stay findable.
	chunkOverlap = 200
)

// Ingestor writes chat messages and external documents into the store.
type Ingestor struct {
	store  *Store
	logger log.Logger
}

// NewIngestor creates an Ingestor over store.
func NewIngestor(store *Store, logger log.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger}
}

// IngestMessage stores one chat message. Messages below the minimum length
// are skipped; they carry no retrievable signal.
func (in *Ingestor) IngestMessage(ctx context.Context, chatName, sender, body string, ts time.Time) error {
	body = strings.TrimSpace(body)
	if len([]rune(body)) < minMessageLength {
		return nil
	}

	doc := Document{
		ID:      uuid.NewString(),
		Content: body,
		Metadata: map[string]string{
			MetaSource:   SourceChat,
			MetaChatName: chatName,
			MetaSender:   sender,
		},
		CreatedAt: ts,
	}
	if err := in.store.Add(ctx, doc); err != nil {
		return fmt.Errorf("failed to ingest message: %w", err)
	}
	return nil
}

// IngestDocument chunks and stores one external document. Every chunk
// carries the document title and source so retrieval can attribute it.
// Point IDs are derived from source, docID, and chunk index, so ingesting
// the same document again replaces its chunks instead of appending
// duplicates.
func (in *Ingestor) IngestDocument(ctx context.Context, source, docID, title, text string, ts time.Time) (int, error) {
	chunks := chunkText(text, maxChunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	for i, chunk := range chunks {
		doc := Document{
			ID:      chunkID(source, docID, i),
			Content: chunk,
			Metadata: map[string]string{
				MetaSource: source,
				MetaTitle:  title,
			},
			CreatedAt: ts,
		}
		if err := in.store.Add(ctx, doc); err != nil {
			return i, fmt.Errorf("failed to ingest chunk %d of %q: %w", i, title, err)
		}
	}

	in.logger.Debug("ingested document", "title", title, "chunks", len(chunks))
	return len(chunks), nil
}

// chunkID derives a stable UUID for one chunk of one document.
func chunkID(source, docID string, index int) string {
	name := fmt.Sprintf("%s/%s/%d", source, docID, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// chunkText splits text into chunks of at most maxSize runes, preferring
// paragraph boundaries. Paragraphs longer than maxSize are hard-split with
// overlap runes carried into the next chunk.
func chunkText(text string, maxSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		runes := []rune(para)
		if len(runes) > maxSize {
			flush()
			for start := 0; start < len(runes); {
				end := start + maxSize
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[start:end]))
				if end == len(runes) {
					break
				}
				start = end - overlap
			}
			continue
		}

		if current.Len() > 0 && len([]rune(current.String()))+len(runes)+2 > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}
