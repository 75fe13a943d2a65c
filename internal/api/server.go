// Package api implements the JSON HTTP API and the webhook endpoint.
package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/settings"
	"github.com/donnabot/donna/internal/web"
)

// WebhookHandler receives gateway events. *webhook.Handler satisfies this.
type WebhookHandler interface {
	Handle(w http.ResponseWriter, r *http.Request)
}

// ServerConfig contains the dependencies and knobs for the API server.
type ServerConfig struct {
	Logger    log.Logger
	Webhook   WebhookHandler  // Required
	Settings  *settings.Store // Required
	Answerer  Answerer        // Optional: nil disables POST /rag/query
	Directory Directory       // Optional: nil disables contact/group routes
	Usage     UsageReader     // Optional: nil disables GET /usage
	Postgres  PostgresPinger  // Optional: checked by /ready
	Redis     RedisPinger     // Optional: checked by /ready

	IsDev      bool // Disables HSTS
	TrustProxy bool // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int  // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Webhook == nil {
		return nil, errors.New("webhook handler is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("settings store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()

	// Gateway event intake
	mux.HandleFunc("POST /webhook", cfg.Webhook.Handle)

	// Runtime settings
	sh := &settingsHandler{store: cfg.Settings, logger: logger}
	mux.HandleFunc("GET /config", sh.get)
	mux.HandleFunc("PUT /config", sh.put)

	// Knowledge base
	if cfg.Answerer != nil {
		rh := &ragHandler{service: cfg.Answerer, validate: validator.New(), logger: logger}
		mux.HandleFunc("POST /rag/query", rh.query)
	}

	// Contact and group directory
	if cfg.Directory != nil {
		dh := &directoryHandler{dir: cfg.Directory, logger: logger}
		mux.HandleFunc("GET /contacts", dh.listContacts)
		mux.HandleFunc("GET /contacts/check", dh.checkContact)
		mux.HandleFunc("GET /contacts/{id}", dh.getContact)
		mux.HandleFunc("GET /groups", dh.listGroups)
		mux.HandleFunc("GET /groups/{id}", dh.getGroup)
		mux.HandleFunc("GET /groups/{id}/participants", dh.listParticipants)
	}

	// Usage accounting
	if cfg.Usage != nil {
		uh := &usageHandler{meter: cfg.Usage, logger: logger}
		mux.HandleFunc("GET /usage", uh.get)
	}

	// Embedded settings UI
	mux.Handle("GET /", web.Handler())

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack so
	// container probes never hit the rate limiter.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Postgres, cfg.Redis))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
