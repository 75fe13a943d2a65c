package plugin

import (
	"context"

	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/settings"
)

// Runner is a blocking background job. *paperless.Syncer satisfies this.
type Runner interface {
	Run(ctx context.Context)
}

// Paperless runs the document sync loop in the background.
type Paperless struct {
	runner  Runner
	toggles Toggles
	logger  log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPaperless creates the Paperless plugin.
func NewPaperless(runner Runner, toggles Toggles, logger log.Logger) *Paperless {
	return &Paperless{runner: runner, toggles: toggles, logger: logger}
}

// Name implements Plugin.
func (*Paperless) Name() string { return "paperless" }

// Enabled implements Plugin.
func (p *Paperless) Enabled(ctx context.Context) bool {
	return p.toggles.Bool(ctx, settings.KeyPaperlessSync, true)
}

// Start launches the sync loop. The loop owns its own context so it
// outlives the startup context.
func (p *Paperless) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.runner.Run(ctx)
	}()
	return nil
}

// Stop cancels the sync loop and waits for it to exit, bounded by ctx.
func (p *Paperless) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
