package retrieval

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/telemetry"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Passage is a retrieved chunk together with its rank data.
type Passage struct {
	Position int
	Distance float32
	Chunk    domain.KnowledgeChunk
}

// Retriever embeds a question and returns the identity-filtered nearest passages.
type Retriever struct {
	store    *Store
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a retriever over the given store.
func NewRetriever(store *Store, embedder Embedder, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{store: store, embedder: embedder, topK: topK, logger: logger}
}

// Ready reports whether the underlying index is loaded.
func (r *Retriever) Ready() bool {
	return r.store.Ready()
}

// Retrieve returns up to topK passages for question restricted to the
// identity. The index is checked before any external call is made.
func (r *Retriever) Retrieve(ctx context.Context, question string, p domain.Provider, t domain.Tier) ([]Passage, error) {
	ix, err := r.store.Load()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("hmo", string(p)),
		attribute.String("tier", string(t)),
		attribute.Int("top_k", r.topK),
	))
	defer span.End()

	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		span.RecordError(err)
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, domain.ErrEmbedding("embedding request failed", err)
	}

	candidates := Filter(ix.Chunks(), p, t)
	if len(candidates) == 0 {
		r.logger.WarnContext(ctx, "no passages match identity, searching full collection",
			slog.String("hmo", string(p)),
			slog.String("tier", string(t)),
		)
	}

	hits, err := Rank(ix, query, candidates, r.topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	passages := make([]Passage, len(hits))
	for i, h := range hits {
		passages[i] = Passage{Position: h.Position, Distance: h.Distance, Chunk: ix.Chunk(h.Position)}
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("passages", len(passages)),
	)
	r.logger.DebugContext(ctx, "retrieved passages",
		slog.Int("candidates", len(candidates)),
		slog.Int("passages", len(passages)),
	)
	return passages, nil
}
