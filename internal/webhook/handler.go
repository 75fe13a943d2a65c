// Package webhook receives gateway events, classifies them by message type,
// and drives the assistant. Processing is idempotent per event ID and
// replies are sent asynchronously so the gateway gets its 200 immediately.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/donnabot/donna/internal/assistant"
	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/settings"
)

// replyTimeout bounds one asynchronous turn, retrieval and generation
// included.
const replyTimeout = 2 * time.Minute

// Replier answers a user message. *assistant.Assistant satisfies this.
type Replier interface {
	Reply(ctx context.Context, msg assistant.Incoming) (string, error)
}

// Sender is the outbound gateway surface the handler uses.
// *gateway.Client satisfies this.
type Sender interface {
	SendText(ctx context.Context, chatID, text, replyTo string) error
	SendSeen(ctx context.Context, chatID string) error
	StartTyping(ctx context.Context, chatID string) error
	StopTyping(ctx context.Context, chatID string) error
}

// Settings is the runtime configuration the handler reads per event.
// *settings.Store satisfies this.
type Settings interface {
	GetOr(ctx context.Context, key, fallback string) string
	Bool(ctx context.Context, key string, fallback bool) bool
}

// MessageLog appends processed messages to the audit table. A pgx pool
// satisfies this.
type MessageLog interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Handler processes gateway webhook events.
type Handler struct {
	replier    Replier
	sender     Sender
	dedup      *Deduper
	settings   Settings
	messages   MessageLog
	webhookKey string
	logger     log.Logger

	// async is disabled in tests so processing happens inline.
	async bool
}

// NewHandler creates a webhook handler. webhookKey, when non-empty, must
// match the X-Webhook-Key header of every delivery.
func NewHandler(replier Replier, sender Sender, dedup *Deduper, st Settings, messages MessageLog, webhookKey string, logger log.Logger) *Handler {
	return &Handler{
		replier:    replier,
		sender:     sender,
		dedup:      dedup,
		settings:   st,
		messages:   messages,
		webhookKey: webhookKey,
		logger:     logger,
		async:      true,
	}
}

// Handle is the HTTP entry point for POST /webhook. It validates, claims
// the event ID, and returns immediately; the reply happens in the
// background.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.webhookKey != "" && r.Header.Get("X-Webhook-Key") != h.webhookKey {
		http.Error(w, `{"error":"invalid webhook key"}`, http.StatusUnauthorized)
		return
	}

	var event gateway.WebhookEvent
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, `{"error":"invalid event body"}`, http.StatusBadRequest)
		return
	}

	eventID := event.ID
	if eventID == "" {
		eventID = event.Payload.ID
	}
	if eventID == "" {
		http.Error(w, `{"error":"event id is required"}`, http.StatusBadRequest)
		return
	}

	seen, err := h.dedup.Seen(r.Context(), eventID)
	if err != nil {
		h.logger.Error("dedup check failed, processing anyway", "event_id", eventID, "error", err)
	}
	if seen {
		h.logger.Debug("duplicate event acknowledged", "event_id", eventID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"duplicate"}`))
		return
	}

	if h.async {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
			defer cancel()
			h.process(ctx, event)
		}()
	} else {
		h.process(r.Context(), event)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// process dispatches one event by type.
func (h *Handler) process(ctx context.Context, event gateway.WebhookEvent) {
	switch event.Event {
	case gateway.EventMessage, gateway.EventMessageAny:
		h.processMessage(ctx, event)
	case gateway.EventSessionStatus:
		h.logger.Info("session status changed",
			"session", event.Session, "status", event.Payload.Status)
	default:
		h.logger.Debug("ignoring event", "event", event.Event)
	}
}

// processMessage classifies one inbound message and replies.
func (h *Handler) processMessage(ctx context.Context, event gateway.WebhookEvent) {
	p := event.Payload

	// Own messages come back on message.any; never answer ourselves.
	if p.FromMe {
		return
	}

	if !h.settings.Bool(ctx, settings.KeyWhatsAppEnabled, true) {
		h.logger.Debug("whatsapp replies disabled, dropping message", "chat_id", p.From)
		return
	}

	if isGroupChat(p.From) && h.settings.Bool(ctx, settings.KeyGroupMentionOnly, true) {
		persona := h.settings.GetOr(ctx, settings.KeyPersonaName, "Donna")
		if !mentionsBot(p, persona) {
			h.logger.Debug("group message without mention, ignoring", "chat_id", p.From)
			return
		}
	}

	h.logMessage(ctx, event, "in")

	kind := classify(p)
	switch kind {
	case kindText:
		h.replyToText(ctx, event)
	case kindImage:
		h.sendCanned(ctx, p, settings.KeyReplyToImages,
			"Nice picture! I can't see images yet though.")
	case kindVoice:
		h.sendCanned(ctx, p, settings.KeyReplyToVoiceNotes,
			"I can't listen to voice notes yet. Mind typing that out?")
	case kindDocument:
		h.sendCanned(ctx, p, settings.KeyReplyToDocuments,
			"Got the file. I can't read attachments yet.")
	}
}

// replyToText runs a full assistant turn with presence signals around it.
func (h *Handler) replyToText(ctx context.Context, event gateway.WebhookEvent) {
	p := event.Payload

	if err := h.sender.SendSeen(ctx, p.From); err != nil {
		h.logger.Warn("failed to send seen", "chat_id", p.From, "error", err)
	}
	if err := h.sender.StartTyping(ctx, p.From); err != nil {
		h.logger.Warn("failed to start typing", "chat_id", p.From, "error", err)
	}
	defer func() {
		if err := h.sender.StopTyping(ctx, p.From); err != nil {
			h.logger.Warn("failed to stop typing", "chat_id", p.From, "error", err)
		}
	}()

	answer, err := h.replier.Reply(ctx, assistant.Incoming{
		ChatID:   p.From,
		ChatName: chatDisplayName(p),
		Sender:   senderName(p),
		Text:     strings.TrimSpace(p.Body),
		At:       time.Unix(p.Timestamp, 0),
	})
	if err != nil {
		h.logger.Error("assistant turn failed", "chat_id", p.From, "error", err)
		return
	}
	if answer == "" {
		return
	}

	if err := h.sender.SendText(ctx, p.From, answer, p.ID); err != nil {
		h.logger.Error("failed to send reply", "chat_id", p.From, "error", err)
		return
	}

	h.logOutbound(ctx, p.From, answer)
}

// sendCanned answers a media message with its configured acknowledgement.
func (h *Handler) sendCanned(ctx context.Context, p gateway.MessagePayload, key, fallback string) {
	text := h.settings.GetOr(ctx, key, fallback)
	if text == "" {
		return
	}
	if err := h.sender.SendText(ctx, p.From, text, p.ID); err != nil {
		h.logger.Error("failed to send acknowledgement", "chat_id", p.From, "error", err)
		return
	}
	h.logOutbound(ctx, p.From, text)
}

// logMessage appends an inbound message to the audit table. The unique
// index on event_id makes replays harmless.
func (h *Handler) logMessage(ctx context.Context, event gateway.WebhookEvent, direction string) {
	if h.messages == nil {
		return
	}
	p := event.Payload
	_, err := h.messages.Exec(ctx, `
		INSERT INTO messages (id, event_id, chat_id, chat_name, sender, direction, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		uuid.New(), p.ID, p.From, chatDisplayName(p), senderName(p),
		direction, string(classify(p)), p.Body, time.Unix(p.Timestamp, 0).UTC())
	if err != nil {
		h.logger.Warn("failed to log message", "chat_id", p.From, "error", err)
	}
}

// logOutbound appends a sent reply to the audit table.
func (h *Handler) logOutbound(ctx context.Context, chatID, body string) {
	if h.messages == nil {
		return
	}
	id := uuid.New()
	_, err := h.messages.Exec(ctx, `
		INSERT INTO messages (id, event_id, chat_id, sender, direction, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, "out-"+id.String(), chatID, "donna", "out", string(kindText), body, time.Now().UTC())
	if err != nil {
		h.logger.Warn("failed to log outbound message", "chat_id", chatID, "error", err)
	}
}

// messageKind is the coarse classification driving dispatch.
type messageKind string

const (
	kindText     messageKind = "text"
	kindImage    messageKind = "image"
	kindVoice    messageKind = "voice"
	kindDocument messageKind = "document"
)

// classify maps a payload to its message kind.
func classify(p gateway.MessagePayload) messageKind {
	if !p.HasMedia || p.Media == nil {
		return kindText
	}
	switch {
	case strings.HasPrefix(p.Media.Mimetype, "image/"):
		return kindImage
	case strings.HasPrefix(p.Media.Mimetype, "audio/"):
		return kindVoice
	default:
		return kindDocument
	}
}

// isGroupChat reports whether chatID addresses a group.
func isGroupChat(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us")
}

// mentionsBot reports whether a group message addresses the bot, either
// through an explicit mention or by persona name in the text.
func mentionsBot(p gateway.MessagePayload, persona string) bool {
	if len(p.MentionedIDs) > 0 {
		return true
	}
	return persona != "" && strings.Contains(strings.ToLower(p.Body), strings.ToLower(persona))
}

// chatDisplayName picks the best available chat label for metadata.
func chatDisplayName(p gateway.MessagePayload) string {
	return p.From
}

// senderName identifies the author: in groups the participant, otherwise
// the chat itself.
func senderName(p gateway.MessagePayload) string {
	if p.Participant != "" {
		return p.Participant
	}
	return p.From
}
