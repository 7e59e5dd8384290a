package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/identity"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
	"github.com/tjfontaine/hmo-assistant/internal/tokens"
)

// rawChunk is the builder's input record. Tags may be Hebrew or English.
type rawChunk struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Service  string `json:"service"`
	Section  string `json:"section"`
	HMO      string `json:"hmo"`
	Tier     string `json:"tier"`
}

// ReadChunks decodes a JSON array of chunk records and normalizes their tags.
func ReadChunks(r io.Reader) ([]domain.KnowledgeChunk, error) {
	var raw []rawChunk
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, domain.ErrValidation("chunk file is not a JSON array of chunks: " + err.Error())
	}

	chunks := make([]domain.KnowledgeChunk, 0, len(raw))
	for i, rc := range raw {
		if strings.TrimSpace(rc.Text) == "" {
			return nil, domain.ErrValidation(fmt.Sprintf("chunk %d has no text", i)).WithField("text")
		}
		p, t, err := identity.ParseOptional(rc.HMO, rc.Tier)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, domain.KnowledgeChunk{
			Text:     rc.Text,
			Category: rc.Category,
			Service:  rc.Service,
			Section:  rc.Section,
			Provider: p,
			Tier:     t,
		})
	}
	return chunks, nil
}

// BuilderConfig holds Builder tunables.
type BuilderConfig struct {
	EmbeddingModel string
	MaxInputTokens int
	Concurrency    int
}

// Builder embeds chunks and writes a knowledge base file.
type Builder struct {
	embedder llm.Embedder
	counter  *tokens.Counter
	cfg      BuilderConfig
	logger   *slog.Logger
}

// NewBuilder creates a Builder. counter may be nil to skip the input limit check.
func NewBuilder(embedder llm.Embedder, counter *tokens.Counter, cfg BuilderConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.MaxInputTokens < 1 {
		cfg.MaxInputTokens = 8191
	}
	return &Builder{
		embedder: embedder,
		counter:  counter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Build embeds every chunk and replaces outPath with the result. Nothing is
// written to outPath unless every chunk embedded successfully.
func (b *Builder) Build(ctx context.Context, chunks []domain.KnowledgeChunk, outPath string) (retrieval.Meta, error) {
	if len(chunks) == 0 {
		return retrieval.Meta{}, domain.ErrValidation("no chunks to index")
	}
	if err := b.checkSizes(chunks); err != nil {
		return retrieval.Meta{}, err
	}

	start := time.Now()
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			v, err := b.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return domain.ErrEmbedding(fmt.Sprintf("embed chunk %d", i), err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return retrieval.Meta{}, err
	}

	meta := retrieval.Meta{
		BuildID:        uuid.NewString(),
		EmbeddingModel: b.cfg.EmbeddingModel,
		BuiltAt:        time.Now().UTC(),
	}

	// Validates counts and dimensions before anything touches disk.
	if _, err := retrieval.NewIndex(chunks, vectors, meta); err != nil {
		return retrieval.Meta{}, err
	}

	if err := writeAtomic(ctx, outPath, chunks, vectors, meta); err != nil {
		return retrieval.Meta{}, err
	}

	b.logger.InfoContext(ctx, "knowledge base built",
		slog.String("path", outPath),
		slog.String("build_id", meta.BuildID),
		slog.Int("chunks", len(chunks)),
		slog.Int("dimension", len(vectors[0])),
		slog.Duration("duration", time.Since(start)),
	)
	return meta, nil
}

func (b *Builder) checkSizes(chunks []domain.KnowledgeChunk) error {
	if b.counter == nil {
		return nil
	}
	for i, c := range chunks {
		n, err := b.counter.Count(b.cfg.EmbeddingModel, c.Text)
		if err != nil {
			return fmt.Errorf("count tokens for chunk %d: %w", i, err)
		}
		if n > b.cfg.MaxInputTokens {
			return domain.ErrValidation(fmt.Sprintf(
				"chunk %d has %d tokens, embedding input limit is %d", i, n, b.cfg.MaxInputTokens,
			)).WithField("text")
		}
	}
	return nil
}

// writeAtomic writes a temp file beside outPath and renames it into place.
func writeAtomic(ctx context.Context, outPath string, chunks []domain.KnowledgeChunk, vectors [][]float32, meta retrieval.Meta) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(outPath)+"."+meta.BuildID+".tmp")
	if err := Write(ctx, tmp, chunks, vectors, meta); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write knowledge base: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", outPath, err)
	}
	return nil
}
