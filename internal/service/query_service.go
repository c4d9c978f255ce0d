// Package service wires embedding, vector search, metadata lookup and
// answer synthesis into the query and RAG operations.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"forumrag/internal/domain"
)

// TracerName identifies spans emitted by this package.
const TracerName = "forumrag/service"

// DefaultSearchLimit is used when Search is called with a non-positive limit.
const DefaultSearchLimit = 5

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// QueryService answers semantic searches over stored posts.
type QueryService struct {
	embedder domain.Embedder
	index    domain.EmbeddingIndex
	docs     domain.DocumentStore
	logger   *slog.Logger
}

// NewQueryService creates a query service.
func NewQueryService(embedder domain.Embedder, index domain.EmbeddingIndex, docs domain.DocumentStore, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{embedder: embedder, index: index, docs: docs, logger: logger}
}

// Search returns up to limit posts ranked by similarity to query. Neighbors
// whose metadata is missing are logged and skipped.
func (s *QueryService) Search(ctx context.Context, query string, limit int) (results []domain.SearchResult, err error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	ctx, span := startSpan(ctx, "query.search",
		attribute.Int("search.limit", limit),
		attribute.String("embedder.name", s.embedder.Name()),
	)
	defer func() {
		span.SetAttributes(attribute.Int("search.results", len(results)))
		endSpan(span, err)
	}()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	neighbors, err := s.index.Query(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	if len(neighbors) == 0 {
		return []domain.SearchResult{}, nil
	}

	ids := make([]int64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading post metadata: %w", err)
	}

	results = make([]domain.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		doc, ok := docs[n.ID]
		if !ok {
			s.logger.Warn("embedding has no metadata row, skipping", "id", n.ID)
			continue
		}
		doc.Timestamp = CleanTimestamp(doc.Timestamp)
		results = append(results, domain.SearchResult{Document: doc, Similarity: 1 - n.Distance})
	}
	return results, nil
}

// Post returns a single post by id with its timestamp cleaned.
func (s *QueryService) Post(ctx context.Context, id int64) (domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Timestamp = CleanTimestamp(doc.Timestamp)
	return doc, nil
}
