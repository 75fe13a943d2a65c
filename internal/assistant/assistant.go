// Package assistant orchestrates one conversational turn: recent chat
// context, knowledge-base retrieval, model generation, and persistence of
// the exchange.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/samber/lo"

	"github.com/donnabot/donna/internal/llm"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/rag"
	"github.com/donnabot/donna/internal/settings"
)

// Generator is the model client the assistant speaks through.
// *llm.Client satisfies this.
type Generator interface {
	GenerateMessages(ctx context.Context, operation, system string, msgs []*ai.Message) (*llm.Result, error)
}

// Retriever looks up knowledge-base context for a turn. *rag.Store
// satisfies this.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...rag.SearchOption) ([]rag.Result, error)
}

// Ingestor persists chat messages into the knowledge base.
// *rag.Ingestor satisfies this.
type Ingestor interface {
	IngestMessage(ctx context.Context, chatName, sender, body string, ts time.Time) error
}

// Settings is the runtime configuration the assistant reads per turn.
// *settings.Store satisfies this.
type Settings interface {
	GetOr(ctx context.Context, key, fallback string) string
	Bool(ctx context.Context, key string, fallback bool) bool
	Int(ctx context.Context, key string, fallback int) int
}

// Incoming is one user message the assistant should answer.
type Incoming struct {
	ChatID   string // gateway chat ID, history key
	ChatName string // display name, retrieval metadata
	Sender   string // display name of the author
	Text     string
	At       time.Time
}

// Assistant answers user messages. It is stateless per turn; all
// conversation state lives in History and the knowledge base.
type Assistant struct {
	generator Generator
	history   *History
	retriever Retriever
	ingestor  Ingestor
	settings  Settings
	logger    log.Logger
}

// New creates an Assistant. retriever and ingestor may be nil to disable
// knowledge-base integration.
func New(generator Generator, history *History, retriever Retriever, ingestor Ingestor, st Settings, logger log.Logger) *Assistant {
	return &Assistant{
		generator: generator,
		history:   history,
		retriever: retriever,
		ingestor:  ingestor,
		settings:  st,
		logger:    logger,
	}
}

// Reply produces the assistant's answer to msg and persists the exchange.
func (a *Assistant) Reply(ctx context.Context, msg Incoming) (string, error) {
	window := a.settings.Int(ctx, settings.KeyContextWindow, 20)
	system := a.buildSystemPrompt(ctx, msg)

	turns, err := a.history.Recent(ctx, msg.ChatID, window)
	if err != nil {
		a.logger.Warn("failed to load chat history, answering without it",
			"chat_id", msg.ChatID, "error", err)
		turns = nil
	}

	msgs := lo.Map(turns, func(t Turn, _ int) *ai.Message {
		if t.Role == "model" {
			return ai.NewModelMessage(ai.NewTextPart(t.Text))
		}
		return ai.NewUserMessage(ai.NewTextPart(t.Text))
	})
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(msg.Text)))

	result, err := a.generator.GenerateMessages(ctx, "chat", system, msgs)
	if err != nil {
		return "", fmt.Errorf("assistant reply failed: %w", err)
	}
	answer := strings.TrimSpace(result.Text)

	a.persistTurn(ctx, msg, answer, window)

	return answer, nil
}

// buildSystemPrompt combines the configured persona with retrieved
// knowledge-base context, if any.
func (a *Assistant) buildSystemPrompt(ctx context.Context, msg Incoming) string {
	persona := a.settings.GetOr(ctx, settings.KeyPersonaName, "Donna")
	base := a.settings.GetOr(ctx, settings.KeySystemPrompt,
		"You are "+persona+", a concise and helpful personal assistant on WhatsApp.")

	if a.retriever == nil {
		return base
	}

	topK := a.settings.Int(ctx, settings.KeyRetrievalTopK, rag.DefaultResultCount)
	results, err := a.retriever.Search(ctx, msg.Text, rag.WithTopK(topK))
	if err != nil {
		a.logger.Warn("retrieval failed, answering without context", "error", err)
		return base
	}
	if len(results) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRelevant context from the user's history and documents:\n")
	for _, r := range results {
		b.WriteString("- ")
		b.WriteString(r.Document.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// persistTurn appends both sides to the chat history and, when enabled,
// ingests the user message into the knowledge base. Failures here must not
// fail the reply; they are logged and dropped.
func (a *Assistant) persistTurn(ctx context.Context, msg Incoming, answer string, window int) {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}

	if err := a.history.Append(ctx, msg.ChatID, Turn{Role: "user", Text: msg.Text, At: at}, window); err != nil {
		a.logger.Warn("failed to persist user turn", "chat_id", msg.ChatID, "error", err)
	}
	if err := a.history.Append(ctx, msg.ChatID, Turn{Role: "model", Text: answer, At: time.Now()}, window); err != nil {
		a.logger.Warn("failed to persist model turn", "chat_id", msg.ChatID, "error", err)
	}

	if a.ingestor != nil && a.settings.Bool(ctx, settings.KeyIngestHistory, true) {
		if err := a.ingestor.IngestMessage(ctx, msg.ChatName, msg.Sender, msg.Text, at); err != nil {
			a.logger.Warn("failed to ingest message", "chat_id", msg.ChatID, "error", err)
		}
	}
}
