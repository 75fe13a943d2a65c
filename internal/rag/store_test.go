package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/donnabot/donna/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr      error
	returnEmpty   bool
	embeddings    []float32
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: nil}, nil
	}
	embeddings := m.embeddings
	if embeddings == nil {
		embeddings = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: embeddings}},
	}, nil
}

// fakePoints is an in-memory Points implementation.
type fakePoints struct {
	collections map[string]bool
	upserted    []*qdrant.PointStruct
	queryResult []*qdrant.ScoredPoint
	lastQuery   *qdrant.QueryPoints
	lastCount   *qdrant.CountPoints
	deleted     []string
	countResult uint64
}

func newFakePoints() *fakePoints {
	return &fakePoints{collections: make(map[string]bool)}
}

func (f *fakePoints) CollectionExists(_ context.Context, name string) (bool, error) {
	return f.collections[name], nil
}

func (f *fakePoints) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.collections[req.CollectionName] = true
	return nil
}

func (f *fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = append(f.upserted, req.Points...)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	return f.queryResult, nil
}

func (f *fakePoints) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	for _, id := range req.Points.GetPoints().GetIds() {
		f.deleted = append(f.deleted, id.GetUuid())
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Count(_ context.Context, req *qdrant.CountPoints) (uint64, error) {
	f.lastCount = req
	return f.countResult, nil
}

func newTestStore(points Points, embedder ai.Embedder) *Store {
	return NewStore(points, embedder, "knowledge", 3, log.NewNop())
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	points := newFakePoints()
	store := newTestStore(points, &mockEmbedder{})

	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if !points.collections["knowledge"] {
		t.Fatal("collection was not created")
	}

	// Second call is a no-op.
	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection() second call error = %v", err)
	}
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	points := newFakePoints()
	embedder := &mockEmbedder{}
	store := newTestStore(points, embedder)

	id := uuid.NewString()
	doc := Document{
		ID:      id,
		Content: "Dentist appointment on Friday at 3pm",
		Metadata: map[string]string{
			MetaSource:   SourceChat,
			MetaChatName: "Family",
			MetaSender:   "Rachel",
		},
		CreatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Add(ctx, doc); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if embedder.lastInputText != doc.Content {
		t.Errorf("embedded text = %q, want %q", embedder.lastInputText, doc.Content)
	}
	if len(points.upserted) != 1 {
		t.Fatalf("upserted points = %d, want 1", len(points.upserted))
	}
	p := points.upserted[0]
	if p.Id.GetUuid() != id {
		t.Errorf("point ID = %q, want %q", p.Id.GetUuid(), id)
	}
	if got := p.Payload[MetaChatName].GetStringValue(); got != "Family" {
		t.Errorf("chat_name payload = %q, want %q", got, "Family")
	}
	if got := p.Payload[MetaContent].GetStringValue(); got != doc.Content {
		t.Errorf("content payload = %q, want %q", got, doc.Content)
	}
}

func TestAddRequiresID(t *testing.T) {
	store := newTestStore(newFakePoints(), &mockEmbedder{})
	if err := store.Add(context.Background(), Document{Content: "x"}); err == nil {
		t.Fatal("Add() without ID, want error")
	}
}

func TestAddEmbedderFailure(t *testing.T) {
	embedder := &mockEmbedder{embedErr: errors.New("quota exceeded")}
	store := newTestStore(newFakePoints(), embedder)

	err := store.Add(context.Background(), Document{ID: uuid.NewString(), Content: "x"})
	if err == nil {
		t.Fatal("Add() with failing embedder, want error")
	}
}

func TestAddEmptyEmbedding(t *testing.T) {
	store := newTestStore(newFakePoints(), &mockEmbedder{returnEmpty: true})

	err := store.Add(context.Background(), Document{ID: uuid.NewString(), Content: "x"})
	if err == nil {
		t.Fatal("Add() with empty embedding, want error")
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	points := newFakePoints()
	id := uuid.NewString()
	points.queryResult = []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewID(id),
			Score: 0.92,
			Payload: qdrant.NewValueMap(map[string]any{
				MetaContent:  "Dentist appointment on Friday",
				MetaChatName: "Family",
				MetaSender:   "Rachel",
				MetaCreated:  "2024-06-01T10:00:00Z",
			}),
		},
	}
	store := newTestStore(points, &mockEmbedder{})

	results, err := store.Search(ctx, "when is the dentist",
		WithTopK(3),
		WithFilter(MetaChatName, "Family"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if got := points.lastQuery.GetLimit(); got != 3 {
		t.Errorf("query limit = %d, want 3", got)
	}
	if points.lastQuery.Filter == nil || len(points.lastQuery.Filter.Must) != 1 {
		t.Fatalf("query filter = %+v, want one must condition", points.lastQuery.Filter)
	}

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.Document.ID != id {
		t.Errorf("result ID = %q, want %q", r.Document.ID, id)
	}
	if r.Document.Content != "Dentist appointment on Friday" {
		t.Errorf("result content = %q", r.Document.Content)
	}
	if r.Document.Metadata[MetaSender] != "Rachel" {
		t.Errorf("result sender = %q, want Rachel", r.Document.Metadata[MetaSender])
	}
	if r.Similarity != 0.92 {
		t.Errorf("similarity = %f, want 0.92", r.Similarity)
	}
	if r.Document.CreatedAt.IsZero() {
		t.Error("created_at was not parsed")
	}
}

func TestSearchNoFilter(t *testing.T) {
	points := newFakePoints()
	store := newTestStore(points, &mockEmbedder{})

	if _, err := store.Search(context.Background(), "anything"); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if points.lastQuery.Filter != nil {
		t.Errorf("filter = %+v, want nil for unfiltered search", points.lastQuery.Filter)
	}
	if got := points.lastQuery.GetLimit(); got != 5 {
		t.Errorf("default limit = %d, want 5", got)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	tests := []struct {
		name string
		topK int
		want uint64
	}{
		{"negative", -1, DefaultResultCount},
		{"zero", 0, DefaultResultCount},
		{"over maximum", 1000, MaxResultCount},
		{"in range", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := newFakePoints()
			store := newTestStore(points, &mockEmbedder{})

			if _, err := store.Search(context.Background(), "q", WithTopK(tt.topK)); err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if got := points.lastQuery.GetLimit(); got != tt.want {
				t.Errorf("query limit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCount(t *testing.T) {
	points := newFakePoints()
	points.countResult = 42
	store := newTestStore(points, &mockEmbedder{})

	n, err := store.Count(context.Background(), map[string]string{MetaSender: "Rachel"})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 42 {
		t.Errorf("Count() = %d, want 42", n)
	}
	if points.lastCount.Filter == nil {
		t.Error("count filter was not applied")
	}

	if _, err := store.Count(context.Background(), nil); err != nil {
		t.Fatalf("Count(nil) error = %v", err)
	}
	if points.lastCount.Filter != nil {
		t.Error("empty filter should count the whole collection")
	}
}

func TestDelete(t *testing.T) {
	points := newFakePoints()
	store := newTestStore(points, &mockEmbedder{})

	id := uuid.NewString()
	if err := store.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(points.deleted) != 1 || points.deleted[0] != id {
		t.Errorf("deleted = %v, want [%s]", points.deleted, id)
	}
}
