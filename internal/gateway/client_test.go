package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/donnabot/donna/internal/log"
)

// newTestClient starts a fake gateway server and returns a client pointed
// at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret-key", "default", log.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "k", "default", log.NewNop()); err == nil {
		t.Error("New() with empty base URL, want error")
	}
	if _, err := New("http://localhost:3000", "k", "", log.NewNop()); err == nil {
		t.Error("New() with empty session, want error")
	}
	if _, err := New("http://localhost:3000", "", "default", log.NewNop()); err != nil {
		t.Errorf("New() with empty API key, error = %v", err)
	}
}

func TestSendText(t *testing.T) {
	var got sendTextRequest
	var gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sendText" {
			t.Errorf("request = %s %s, want POST /api/sendText", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := client.SendText(context.Background(), "123@c.us", "hello", "msg-1")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if gotKey != "secret-key" {
		t.Errorf("X-Api-Key = %q, want %q", gotKey, "secret-key")
	}
	want := sendTextRequest{Session: "default", ChatID: "123@c.us", Text: "hello", ReplyTo: "msg-1"}
	if got != want {
		t.Errorf("request body = %+v, want %+v", got, want)
	}
}

func TestSendTextServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"session not started"}`, http.StatusUnprocessableEntity)
	})

	if err := client.SendText(context.Background(), "123@c.us", "hi", ""); err == nil {
		t.Fatal("SendText() on 422, want error")
	}
}

func TestSessionStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/default" {
			t.Errorf("path = %s, want /api/sessions/default", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Session{Name: "default", Status: SessionWorking})
	})

	s, err := client.SessionStatus(context.Background())
	if err != nil {
		t.Fatalf("SessionStatus() error = %v", err)
	}
	if s.Status != SessionWorking {
		t.Errorf("Status = %q, want %q", s.Status, SessionWorking)
	}
}

func TestContacts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/contacts/all" {
			t.Errorf("path = %s, want /api/contacts/all", r.URL.Path)
		}
		if got := r.URL.Query().Get("session"); got != "default" {
			t.Errorf("session = %q, want %q", got, "default")
		}
		_ = json.NewEncoder(w).Encode([]Contact{
			{ID: "111@c.us", Name: "Rachel"},
			{ID: "222@c.us", PushName: "Mike"},
		})
	})

	contacts, err := client.Contacts(context.Background())
	if err != nil {
		t.Fatalf("Contacts() error = %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("len(contacts) = %d, want 2", len(contacts))
	}
	if contacts[0].Name != "Rachel" {
		t.Errorf("contacts[0].Name = %q, want %q", contacts[0].Name, "Rachel")
	}
}

func TestContactExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("phone"); got != "15551234567" {
			t.Errorf("phone = %q, want %q", got, "15551234567")
		}
		_ = json.NewEncoder(w).Encode(existsResponse{NumberExists: true, ChatID: "15551234567@c.us"})
	})

	ok, chatID, err := client.ContactExists(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("ContactExists() error = %v", err)
	}
	if !ok || chatID != "15551234567@c.us" {
		t.Errorf("ContactExists() = (%v, %q), want (true, 15551234567@c.us)", ok, chatID)
	}
}

func TestGroups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/default/groups":
			_ = json.NewEncoder(w).Encode([]Group{{ID: "g1@g.us", Subject: "Family"}})
		case "/api/default/groups/g1@g.us/participants":
			_ = json.NewEncoder(w).Encode([]Participant{
				{ID: "111@c.us", Role: "admin"},
				{ID: "222@c.us"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	groups, err := client.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if len(groups) != 1 || groups[0].Subject != "Family" {
		t.Fatalf("Groups() = %+v, want one group named Family", groups)
	}

	members, err := client.GroupParticipants(context.Background(), "g1@g.us")
	if err != nil {
		t.Fatalf("GroupParticipants() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("len(members) = %d, want 2", len(members))
	}
}
