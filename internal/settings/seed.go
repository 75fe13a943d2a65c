package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kelseyhightower/envconfig"
)

// Defaults holds the first-boot values for every setting. They are read from
// the environment (DONNA_SETTING_* variables) with sensible fallbacks and
// written to the settings table exactly once; existing rows are never
// overwritten, so runtime edits win over the environment on later boots.
type Defaults struct {
	PersonaName      string `envconfig:"PERSONA_NAME" default:"Donna"`
	SystemPrompt     string `envconfig:"SYSTEM_PROMPT" default:"You are Donna, a concise and helpful personal assistant on WhatsApp. Answer briefly and directly."`
	GroupMentionOnly bool   `envconfig:"GROUP_MENTION_ONLY" default:"true"`
	ContextWindow    int    `envconfig:"CONTEXT_WINDOW" default:"20"`
	IngestHistory    bool   `envconfig:"INGEST_HISTORY" default:"true"`
	RetrievalTopK    int    `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	PaperlessSync    bool   `envconfig:"PAPERLESS_SYNC" default:"true"`
	WhatsAppEnabled  bool   `envconfig:"WHATSAPP_ENABLED" default:"true"`
	VoiceReply       string `envconfig:"VOICE_REPLY" default:"I can't listen to voice notes yet. Mind typing that out?"`
	ImageReply       string `envconfig:"IMAGE_REPLY" default:"Nice picture! I can't see images yet though."`
	DocumentReply    string `envconfig:"DOCUMENT_REPLY" default:"Got the file. I can't read attachments yet."`
}

// LoadDefaults reads seed defaults from DONNA_SETTING_* environment
// variables.
func LoadDefaults() (Defaults, error) {
	var d Defaults
	if err := envconfig.Process("DONNA_SETTING", &d); err != nil {
		return Defaults{}, fmt.Errorf("failed to read setting defaults: %w", err)
	}
	return d, nil
}

// pairs flattens the defaults into key-value rows for seeding.
func (d Defaults) pairs() map[string]string {
	return map[string]string{
		KeyPersonaName:       d.PersonaName,
		KeySystemPrompt:      d.SystemPrompt,
		KeyGroupMentionOnly:  strconv.FormatBool(d.GroupMentionOnly),
		KeyContextWindow:     strconv.Itoa(d.ContextWindow),
		KeyIngestHistory:     strconv.FormatBool(d.IngestHistory),
		KeyRetrievalTopK:     strconv.Itoa(d.RetrievalTopK),
		KeyPaperlessSync:     strconv.FormatBool(d.PaperlessSync),
		KeyWhatsAppEnabled:   strconv.FormatBool(d.WhatsAppEnabled),
		KeyReplyToVoiceNotes: d.VoiceReply,
		KeyReplyToImages:     d.ImageReply,
		KeyReplyToDocuments:  d.DocumentReply,
	}
}

// Seed inserts defaults for any key that has never been written. Keys that
// already exist keep their stored value.
func (s *Store) Seed(ctx context.Context, d Defaults) error {
	inserted := 0
	for k, v := range d.pairs() {
		tag, err := s.db.Exec(ctx, `
			INSERT INTO settings (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO NOTHING`,
			k, v)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", k, err)
		}
		inserted += int(tag.RowsAffected())
	}

	// Force a reload so the cache sees seeded rows.
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}

	s.logger.Info("settings seeded", "inserted", inserted)
	return nil
}
