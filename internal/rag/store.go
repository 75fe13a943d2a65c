// Package rag implements the retrieval-augmented-generation pipeline: a
// Qdrant-backed vector store, ingestion of chat messages and external
// documents, and the question-answering service built on top of retrieval.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/qdrant/go-client/qdrant"

	"github.com/donnabot/donna/internal/log"
)

// Points is the subset of qdrant.Client the store uses. Defined here so
// tests can substitute a fake without a running Qdrant.
type Points interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
}

// Store manages knowledge documents in a Qdrant collection. Content is
// embedded through the configured embedder on write and on query.
//
// Store is safe for concurrent use.
type Store struct {
	points     Points
	embedder   ai.Embedder
	collection string
	dimension  uint64
	logger     log.Logger
}

// NewStore creates a Store over the given collection. dimension must match
// the embedder's output size.
func NewStore(points Points, embedder ai.Embedder, collection string, dimension uint64, logger log.Logger) *Store {
	return &Store{
		points:     points,
		embedder:   embedder,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}
}

// EnsureCollection creates the collection if it does not exist. Cosine
// distance matches how the embedders are trained.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.points.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.points.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", s.collection, err)
	}

	s.logger.Info("created knowledge collection", "collection", s.collection, "dimension", s.dimension)
	return nil
}

// embed generates the embedding vector for one text.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// Add embeds and upserts one document.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	vector, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	payload := map[string]any{MetaContent: doc.Content}
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	if !doc.CreatedAt.IsZero() {
		payload[MetaCreated] = doc.CreatedAt.UTC().Format(time.RFC3339)
	}

	_, err = s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(doc.ID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search performs semantic search, most similar first.
//
//	results, err := store.Search(ctx, "dentist appointment",
//	    rag.WithTopK(10),
//	    rag.WithFilter(rag.MetaChatName, "Family"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vector, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(cfg.topK)), // #nosec G115 -- buildSearchConfig clamps topK to [1, MaxResultCount]
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(cfg.filter),
	}

	points, err := s.points.Query(queryCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.pointsToResults(points), nil
}

// Count returns the number of documents matching the filter. A nil or empty
// filter counts the whole collection.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	count, err := s.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         buildFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return int(count), nil // #nosec G115 -- collection sizes fit in int
}

// Delete removes one document by ID.
func (s *Store) Delete(ctx context.Context, docID string) error {
	_, err := s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(docID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %q: %w", docID, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// buildFilter converts a key-value filter to a Qdrant must-match filter.
// All conditions are ANDed.
func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

// pointsToResults converts scored points back to documents.
func (s *Store) pointsToResults(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))
	for _, p := range points {
		doc := Document{
			ID:       p.GetId().GetUuid(),
			Metadata: make(map[string]string),
		}
		for k, v := range p.GetPayload() {
			sv := v.GetStringValue()
			switch k {
			case MetaContent:
				doc.Content = sv
			case MetaCreated:
				if t, err := time.Parse(time.RFC3339, sv); err == nil {
					doc.CreatedAt = t
				}
			default:
				if sv != "" {
					doc.Metadata[k] = sv
				}
			}
		}
		results = append(results, Result{Document: doc, Similarity: p.GetScore()})
	}
	return results
}
