package rag

import "time"

// Payload keys stored alongside each vector in Qdrant.
const (
	MetaContent  = "content"
	MetaChatName = "chat_name"
	MetaSender   = "sender"
	MetaSource   = "source"
	MetaTitle    = "title"
	MetaCreated  = "created_at"
)

// Source values for the source payload key.
const (
	SourceChat      = "chat"
	SourcePaperless = "paperless"
)

// Document is one entry in the knowledge base.
type Document struct {
	ID        string            // UUID, doubles as the Qdrant point ID
	Content   string            // Text content
	Metadata  map[string]string // chat_name, sender, source, title
	CreatedAt time.Time
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Document   Document
	Similarity float32
}

// SearchOption configures a search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithFilter adds a payload filter. Multiple filters are ANDed.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the default 10s search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.timeout = d
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultResultCount,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	// topK can come straight from a runtime setting; out-of-range values
	// must never reach the query, a negative one underflows the uint64
	// limit.
	if cfg.topK < 1 {
		cfg.topK = DefaultResultCount
	}
	if cfg.topK > MaxResultCount {
		cfg.topK = MaxResultCount
	}
	return cfg
}
