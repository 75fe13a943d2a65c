// Package plugin manages the lifecycle of optional integrations. Plugins
// register in order, start in order, and stop in reverse order.
package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/donnabot/donna/internal/log"
)

// ErrDuplicatePlugin is returned when a plugin name is registered twice.
var ErrDuplicatePlugin = errors.New("plugin already registered")

// Plugin is one optional integration.
type Plugin interface {
	// Name identifies the plugin; must be unique within a registry.
	Name() string

	// Enabled decides at startup whether the plugin runs. Typically
	// backed by a settings key.
	Enabled(ctx context.Context) bool

	// Start launches the plugin. It must return promptly; long-running
	// work belongs in goroutines owned by the plugin.
	Start(ctx context.Context) error

	// Stop shuts the plugin down and waits for its goroutines.
	Stop(ctx context.Context) error
}

// Registry holds plugins in registration order.
type Registry struct {
	plugins []Plugin
	started []Plugin
	logger  log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin. Duplicate names are rejected.
func (r *Registry) Register(p Plugin) error {
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name())
		}
	}
	r.plugins = append(r.plugins, p)
	return nil
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// StartAll starts every enabled plugin in registration order. On failure,
// plugins already started are stopped in reverse order and the error is
// returned.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, p := range r.plugins {
		if !p.Enabled(ctx) {
			r.logger.Info("plugin disabled, skipping", "plugin", p.Name())
			continue
		}
		if err := p.Start(ctx); err != nil {
			r.logger.Error("plugin failed to start", "plugin", p.Name(), "error", err)
			r.StopAll(ctx)
			return fmt.Errorf("failed to start plugin %s: %w", p.Name(), err)
		}
		r.started = append(r.started, p)
		r.logger.Info("plugin started", "plugin", p.Name())
	}
	return nil
}

// StopAll stops started plugins in reverse order. Stop errors are logged,
// not returned; shutdown must not stall on one misbehaving plugin.
func (r *Registry) StopAll(ctx context.Context) {
	for i := len(r.started) - 1; i >= 0; i-- {
		p := r.started[i]
		if err := p.Stop(ctx); err != nil {
			r.logger.Warn("plugin failed to stop", "plugin", p.Name(), "error", err)
		} else {
			r.logger.Info("plugin stopped", "plugin", p.Name())
		}
	}
	r.started = nil
}
