package paperless

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/donnabot/donna/internal/log"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "tok", log.NewNop()); err == nil {
		t.Error("NewClient() with empty base URL, want error")
	}
	if _, err := NewClient("http://paperless:8000", "", log.NewNop()); err == nil {
		t.Error("NewClient() with empty token, want error")
	}
}

func TestDocumentsPagination(t *testing.T) {
	var gotAuth string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/documents/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.URL.Query().Get("page") {
		case "", "1":
			_ = json.NewEncoder(w).Encode(documentsResponse{
				Count:   3,
				Next:    srv.URL + "/api/documents/?page=2",
				Results: []Document{{ID: 1, Title: "Insurance"}, {ID: 2, Title: "Lease"}},
			})
		case "2":
			_ = json.NewEncoder(w).Encode(documentsResponse{
				Count:   3,
				Results: []Document{{ID: 3, Title: "Invoice"}},
			})
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "tok-123", log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	docs, err := client.Documents(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}
	if gotAuth != "Token tok-123" {
		t.Errorf("Authorization = %q, want Token tok-123", gotAuth)
	}
}

func TestDocumentsModifiedFilter(t *testing.T) {
	var gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModified = r.URL.Query().Get("modified__gt")
		_ = json.NewEncoder(w).Encode(documentsResponse{})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "tok", log.NewNop())
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := client.Documents(context.Background(), since); err != nil {
		t.Fatalf("Documents() error = %v", err)
	}
	if gotModified != "2024-06-01T00:00:00Z" {
		t.Errorf("modified__gt = %q", gotModified)
	}
}

func TestDocumentsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "tok", log.NewNop())
	if _, err := client.Documents(context.Background(), time.Time{}); err == nil {
		t.Fatal("Documents() on 403, want error")
	}
}

func TestTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(tagsResponse{
			Count:   2,
			Results: []Tag{{ID: 1, Name: "tax"}, {ID: 2, Name: "medical"}},
		})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, "tok", log.NewNop())
	tags, err := client.Tags(context.Background())
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "tax" {
		t.Errorf("tags = %+v", tags)
	}
}
