package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/donnabot/donna/internal/llm"
	"github.com/donnabot/donna/internal/log"
)

const (
	// DefaultResultCount is the retrieval size when the request omits n.
	DefaultResultCount = 5
	// MaxResultCount caps the retrieval size per query.
	MaxResultCount = 20
)

// Generator produces an answer from a system prompt and a user prompt.
// Implementations meter their own usage; the returned result carries usage
// for reporting only. *llm.Client satisfies this.
type Generator interface {
	Generate(ctx context.Context, operation, system, prompt string) (*llm.Result, error)
}

// Request is a knowledge-base question.
type Request struct {
	Question string `json:"question" validate:"required"`
	N        int    `json:"n,omitempty" validate:"gte=0,lte=20"`
	ChatName string `json:"chat_name,omitempty"`
	Sender   string `json:"sender,omitempty"`
}

// Stats describes what retrieval did for one query.
type Stats struct {
	Considered    int     `json:"documents_considered"`
	Retrieved     int     `json:"documents_retrieved"`
	TopSimilarity float32 `json:"top_similarity"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	CostUSD       float64 `json:"cost_usd"`
	ElapsedMS     int64   `json:"elapsed_ms"`
}

// Response is the answer plus retrieval statistics.
type Response struct {
	Answer string `json:"answer"`
	Stats  Stats  `json:"stats"`
}

// Service answers questions against the knowledge base.
type Service struct {
	store     *Store
	generator Generator
	logger    log.Logger
}

// NewService creates a query service.
func NewService(store *Store, generator Generator, logger log.Logger) *Service {
	return &Service{store: store, generator: generator, logger: logger}
}

const answerSystemPrompt = `You answer questions using only the provided context snippets.
Each snippet comes from the user's WhatsApp history or their document archive.
If the context does not contain the answer, say so plainly. Be concise.`

// Query retrieves context for req.Question, asks the model, and returns the
// answer with retrieval statistics. Filters are ANDed; an empty filter
// searches the whole collection.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	n := req.N
	if n <= 0 {
		n = DefaultResultCount
	}
	if n > MaxResultCount {
		n = MaxResultCount
	}

	filter := make(map[string]string)
	if req.ChatName != "" {
		filter[MetaChatName] = req.ChatName
	}
	if req.Sender != "" {
		filter[MetaSender] = req.Sender
	}

	opts := []SearchOption{WithTopK(n)}
	for k, v := range filter {
		opts = append(opts, WithFilter(k, v))
	}

	results, err := s.store.Search(ctx, req.Question, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	considered, err := s.store.Count(ctx, filter)
	if err != nil {
		s.logger.Warn("failed to count candidate documents", "error", err)
		considered = len(results)
	}

	gen, err := s.generator.Generate(ctx, "rag_query", answerSystemPrompt, buildPrompt(req.Question, results))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	stats := Stats{
		Considered: considered,
		Retrieved:  len(results),
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	if len(results) > 0 {
		stats.TopSimilarity = results[0].Similarity
	}
	if gen.Usage != nil {
		stats.InputTokens = gen.Usage.InputTokens
		stats.OutputTokens = gen.Usage.OutputTokens
		stats.CostUSD = gen.CostUSD
	}

	s.logger.Info("knowledge query answered",
		"retrieved", stats.Retrieved,
		"considered", stats.Considered,
		"elapsed_ms", stats.ElapsedMS)

	return &Response{Answer: gen.Text, Stats: stats}, nil
}

// buildPrompt assembles the retrieval context and the question into one
// user prompt.
func buildPrompt(question string, results []Result) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(results) == 0 {
		b.WriteString("(no matching documents)\n")
	}
	for i, r := range results {
		b.WriteString(fmt.Sprintf("[%d]", i+1))
		if chat := r.Document.Metadata[MetaChatName]; chat != "" {
			b.WriteString(" chat=" + chat)
		}
		if sender := r.Document.Metadata[MetaSender]; sender != "" {
			b.WriteString(" from=" + sender)
		}
		if title := r.Document.Metadata[MetaTitle]; title != "" {
			b.WriteString(" doc=" + title)
		}
		if !r.Document.CreatedAt.IsZero() {
			b.WriteString(" date=" + r.Document.CreatedAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
		b.WriteString(r.Document.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
