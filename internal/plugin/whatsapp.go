package plugin

import (
	"context"
	"fmt"

	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/settings"
)

// SessionChecker reports the gateway session state. *gateway.Client
// satisfies this.
type SessionChecker interface {
	SessionStatus(ctx context.Context) (*gateway.Session, error)
}

// Toggles reads plugin enablement from settings. *settings.Store satisfies
// this.
type Toggles interface {
	Bool(ctx context.Context, key string, fallback bool) bool
}

// WhatsApp verifies the gateway session at startup. The webhook endpoint
// does the actual message consumption; this plugin exists so a dead or
// unauthenticated session is visible at boot instead of at the first
// missed message.
type WhatsApp struct {
	checker SessionChecker
	toggles Toggles
	logger  log.Logger
}

// NewWhatsApp creates the WhatsApp plugin.
func NewWhatsApp(checker SessionChecker, toggles Toggles, logger log.Logger) *WhatsApp {
	return &WhatsApp{checker: checker, toggles: toggles, logger: logger}
}

// Name implements Plugin.
func (*WhatsApp) Name() string { return "whatsapp" }

// Enabled implements Plugin.
func (w *WhatsApp) Enabled(ctx context.Context) bool {
	return w.toggles.Bool(ctx, settings.KeyWhatsAppEnabled, true)
}

// Start checks that the gateway session is reachable. A session that is
// not WORKING is logged but does not fail startup; it may still be pairing.
func (w *WhatsApp) Start(ctx context.Context) error {
	s, err := w.checker.SessionStatus(ctx)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	if s.Status != gateway.SessionWorking {
		w.logger.Warn("gateway session not ready", "session", s.Name, "status", s.Status)
	} else {
		w.logger.Info("gateway session ready", "session", s.Name)
	}
	return nil
}

// Stop implements Plugin.
func (*WhatsApp) Stop(context.Context) error { return nil }
