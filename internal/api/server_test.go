package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/donnabot/donna/internal/cost"
	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/rag"
	"github.com/donnabot/donna/internal/settings"
)

// fakeQuerier is an in-memory settings.Querier for handler tests.
type fakeQuerier struct {
	rows map[string]string
}

func (f *fakeQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	key, _ := args[0].(string)
	value, _ := args[1].(string)
	f.rows[key] = value
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	pairs := make([][2]string, 0, len(f.rows))
	for k, v := range f.rows {
		pairs = append(pairs, [2]string{k, v})
	}
	return &fakeRows{pairs: pairs, idx: -1}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

type fakeRows struct {
	pairs [][2]string
	idx   int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.pairs)
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.pairs) {
		return pgx.ErrNoRows
	}
	*(dest[0].(*string)) = r.pairs[r.idx][0]
	*(dest[1].(*string)) = r.pairs[r.idx][1]
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeWebhook struct {
	called bool
}

func (f *fakeWebhook) Handle(w http.ResponseWriter, _ *http.Request) {
	f.called = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type fakeAnswerer struct {
	resp *rag.Response
	err  error
	last rag.Request
}

func (f *fakeAnswerer) Query(_ context.Context, req rag.Request) (*rag.Response, error) {
	f.last = req
	return f.resp, f.err
}

type fakeDirectory struct {
	contacts []gateway.Contact
	groups   []gateway.Group
	err      error
}

func (f *fakeDirectory) Contacts(context.Context) ([]gateway.Contact, error) {
	return f.contacts, f.err
}

func (f *fakeDirectory) Contact(_ context.Context, id string) (*gateway.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Contact{ID: id, Name: "Rachel"}, nil
}

func (f *fakeDirectory) ContactExists(context.Context, string) (bool, string, error) {
	return true, "48123123123@c.us", f.err
}

func (f *fakeDirectory) Groups(context.Context) ([]gateway.Group, error) {
	return f.groups, f.err
}

func (f *fakeDirectory) Group(_ context.Context, id string) (*gateway.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Group{ID: id, Subject: "Family"}, nil
}

func (f *fakeDirectory) GroupParticipants(context.Context, string) ([]gateway.Participant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []gateway.Participant{{ID: "1@c.us"}}, nil
}

type fakeUsage struct {
	totals []cost.Usage
	err    error
}

func (f *fakeUsage) Totals(context.Context) ([]cost.Usage, error) { return f.totals, f.err }

func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *fakeQuerier) {
	t.Helper()
	db := &fakeQuerier{rows: map[string]string{
		settings.KeyPersonaName:   "Donna",
		settings.KeySystemPrompt:  "You are Donna.",
		settings.KeyContextWindow: "20",
	}}
	cfg := ServerConfig{
		Logger:   log.NewNop(),
		Webhook:  &fakeWebhook{},
		Settings: settings.NewStore(db, log.NewNop()),
		Answerer: &fakeAnswerer{resp: &rag.Response{Answer: "42"}},
		Directory: &fakeDirectory{
			contacts: []gateway.Contact{{ID: "1@c.us", Name: "Mike"}},
			groups:   []gateway.Group{{ID: "g@g.us", Subject: "Family"}},
		},
		Usage:     &fakeUsage{totals: []cost.Usage{{Model: "gemini-2.5-flash", InputTokens: 10}}},
		IsDev:     true,
		RateBurst: 1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv, db
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresWebhook(t *testing.T) {
	_, err := NewServer(ServerConfig{Settings: settings.NewStore(&fakeQuerier{rows: map[string]string{}}, log.NewNop())})
	if err == nil {
		t.Fatal("NewServer() without webhook handler should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

type fakePgPinger struct{ err error }

func (f fakePgPinger) Ping(context.Context) error { return f.err }

type fakeRedisPinger struct{ err error }

func (f fakeRedisPinger) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func TestReadiness(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.Postgres = fakePgPinger{}
		cfg.Redis = fakeRedisPinger{}
	})
	rec := do(t, srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /ready status = %d, want %d", rec.Code, http.StatusOK)
	}

	srv, _ = newTestServer(t, func(cfg *ServerConfig) {
		cfg.Postgres = fakePgPinger{err: errors.New("connection refused")}
		cfg.Redis = fakeRedisPinger{}
	})
	rec = do(t, srv, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /ready with broken postgres status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestGetConfig(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /config status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got[settings.KeyPersonaName] != "Donna" {
		t.Errorf("persona name = %q, want %q", got[settings.KeyPersonaName], "Donna")
	}
}

func TestPutConfig(t *testing.T) {
	srv, db := newTestServer(t, nil)
	body := `{"persona.name": "Harvey", "chat.context_window": "30"}`
	rec := do(t, srv, http.MethodPut, "/config", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /config status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if db.rows[settings.KeyPersonaName] != "Harvey" {
		t.Errorf("stored persona name = %q, want %q", db.rows[settings.KeyPersonaName], "Harvey")
	}
}

func TestPutConfigUnknownKey(t *testing.T) {
	srv, db := newTestServer(t, nil)
	rec := do(t, srv, http.MethodPut, "/config", `{"persona.name": "Harvey", "nope": "x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("PUT /config with unknown key status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	// An invalid batch must not apply partially.
	if db.rows[settings.KeyPersonaName] != "Donna" {
		t.Errorf("persona name = %q, want unchanged %q", db.rows[settings.KeyPersonaName], "Donna")
	}
}

func TestPutConfigInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodPut, "/config", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("PUT /config with invalid body status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRagQuery(t *testing.T) {
	answerer := &fakeAnswerer{resp: &rag.Response{
		Answer: "the meeting is on Friday",
		Stats:  rag.Stats{Retrieved: 3},
	}}
	srv, _ := newTestServer(t, func(cfg *ServerConfig) { cfg.Answerer = answerer })

	rec := do(t, srv, http.MethodPost, "/rag/query", `{"question": "when is the meeting?", "n": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /rag/query status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if answerer.last.Question != "when is the meeting?" {
		t.Errorf("question = %q, want %q", answerer.last.Question, "when is the meeting?")
	}

	var got rag.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Answer != "the meeting is on Friday" {
		t.Errorf("answer = %q", got.Answer)
	}
}

func TestRagQueryValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/rag/query", `{"n": 3}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing question status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = do(t, srv, http.MethodPost, "/rag/query", `{"question": "q", "n": 100}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("n over limit status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDirectoryRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/contacts", http.StatusOK},
		{"/contacts/check?phone=%2B48123123123", http.StatusOK},
		{"/contacts/1@c.us", http.StatusOK},
		{"/groups", http.StatusOK},
		{"/groups/g@g.us", http.StatusOK},
		{"/groups/g@g.us/participants", http.StatusOK},
	}
	for _, tt := range tests {
		rec := do(t, srv, http.MethodGet, tt.path, "")
		if rec.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestCheckContactRequiresPhone(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/contacts/check", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("GET /contacts/check without phone status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDirectoryGatewayError(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *ServerConfig) {
		cfg.Directory = &fakeDirectory{err: errors.New("gateway down")}
	})
	rec := do(t, srv, http.MethodGet, "/contacts", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("GET /contacts with broken gateway status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestUsage(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/usage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /usage status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got struct {
		Models []cost.Usage `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.Models) != 1 || got.Models[0].Model != "gemini-2.5-flash" {
		t.Errorf("models = %+v, want one gemini-2.5-flash entry", got.Models)
	}
}

func TestWebhookRoute(t *testing.T) {
	hook := &fakeWebhook{}
	srv, _ := newTestServer(t, func(cfg *ServerConfig) { cfg.Webhook = hook })
	rec := do(t, srv, http.MethodPost, "/webhook", `{"event": "message"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /webhook status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !hook.called {
		t.Error("webhook handler was not invoked")
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/config", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options header missing")
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *ServerConfig) { cfg.RateBurst = 2 })

	var last int
	for range 5 {
		rec := do(t, srv, http.MethodGet, "/config", "")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("burst-exhausted status = %d, want %d", last, http.StatusTooManyRequests)
	}

	// Health probes bypass the limiter.
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health after limit status = %d, want %d", rec.Code, http.StatusOK)
	}
}
