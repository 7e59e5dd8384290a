package retrieval

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

func testChunks() []domain.KnowledgeChunk {
	return []domain.KnowledgeChunk{
		{Text: "general intro", Category: "dental"},
		{Text: "maccabi gold", Provider: domain.ProviderMaccabi, Tier: domain.TierGold},
		{Text: "maccabi silver", Provider: domain.ProviderMaccabi, Tier: domain.TierSilver},
		{Text: "clalit gold", Provider: domain.ProviderClalit, Tier: domain.TierGold},
		{Text: "maccabi all tiers", Provider: domain.ProviderMaccabi},
		{Text: "gold everywhere", Tier: domain.TierGold},
		{Text: "meuhedet bronze", Provider: domain.ProviderMeuhedet, Tier: domain.TierBronze},
	}
}

func testVectors() [][]float32 {
	return [][]float32{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 0},
		{4, 0},
		{5, 0},
		{6, 0},
	}
}

func mustIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex(testChunks(), testVectors(), Meta{})
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	return ix
}

func TestFilter(t *testing.T) {
	chunks := testChunks()

	tests := []struct {
		name string
		p    domain.Provider
		t    domain.Tier
		want []int
	}{
		{"maccabi gold", domain.ProviderMaccabi, domain.TierGold, []int{0, 1, 4, 5}},
		{"maccabi silver", domain.ProviderMaccabi, domain.TierSilver, []int{0, 2, 4}},
		{"clalit gold", domain.ProviderClalit, domain.TierGold, []int{0, 3, 5}},
		{"meuhedet bronze", domain.ProviderMeuhedet, domain.TierBronze, []int{0, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(chunks, tt.p, tt.t)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Filter() = %v, want %v", got, tt.want)
			}
			for _, i := range got {
				c := chunks[i]
				if c.Provider.IsSet() && c.Provider != tt.p {
					t.Errorf("chunk %d has provider %q", i, c.Provider)
				}
				if c.Tier.IsSet() && c.Tier != tt.t {
					t.Errorf("chunk %d has tier %q", i, c.Tier)
				}
			}
		})
	}
}

func TestFilter_NoMatchIsEmptyNotNil(t *testing.T) {
	chunks := []domain.KnowledgeChunk{{Provider: domain.ProviderClalit, Tier: domain.TierGold}}
	got := Filter(chunks, domain.ProviderMaccabi, domain.TierGold)
	if got == nil || len(got) != 0 {
		t.Fatalf("Filter() = %#v, want empty non-nil", got)
	}
}

func TestNewIndex_Validation(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []domain.KnowledgeChunk
		vectors [][]float32
	}{
		{"count mismatch", testChunks()[:2], testVectors()[:3]},
		{"empty", nil, nil},
		{"ragged", testChunks()[:2], [][]float32{{1, 2}, {1}}},
		{"zero dimension", testChunks()[:1], [][]float32{{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.chunks, tt.vectors, Meta{})
			if !domain.IsKind(err, domain.KindRetrievalUnavailable) {
				t.Fatalf("NewIndex() error = %v, want retrieval unavailable", err)
			}
		})
	}
}

func TestRank(t *testing.T) {
	ix := mustIndex(t)

	t.Run("subset nearest first", func(t *testing.T) {
		hits, err := Rank(ix, []float32{3.9, 0}, []int{0, 1, 4, 5}, 2)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if got := positions(hits); !slices.Equal(got, []int{4, 5}) {
			t.Errorf("Rank() = %v, want [4 5]", got)
		}
	})

	t.Run("results within candidates and bounded", func(t *testing.T) {
		candidates := []int{0, 2, 4}
		hits, err := Rank(ix, []float32{6, 0}, candidates, 10)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if len(hits) != len(candidates) {
			t.Fatalf("len = %d, want %d", len(hits), len(candidates))
		}
		for _, h := range hits {
			if !slices.Contains(candidates, h.Position) {
				t.Errorf("hit %d not in candidates", h.Position)
			}
		}
	})

	t.Run("ties broken by position", func(t *testing.T) {
		// 1 and 3 are equidistant from 2.
		hits, err := Rank(ix, []float32{2, 0}, []int{3, 1, 2}, 3)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if got := positions(hits); !slices.Equal(got, []int{2, 1, 3}) {
			t.Errorf("Rank() = %v, want [2 1 3]", got)
		}
	})

	t.Run("duplicates collapsed", func(t *testing.T) {
		hits, err := Rank(ix, []float32{0, 0}, []int{1, 1, 1}, 3)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if got := positions(hits); !slices.Equal(got, []int{1}) {
			t.Errorf("Rank() = %v, want [1]", got)
		}
	})

	t.Run("empty candidates equals unrestricted", func(t *testing.T) {
		all := make([]int, ix.Len())
		for i := range all {
			all[i] = i
		}
		fallback, err := Rank(ix, []float32{2.2, 0}, []int{}, 5)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		full, err := Rank(ix, []float32{2.2, 0}, all, 5)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if !slices.Equal(positions(fallback), positions(full)) {
			t.Errorf("fallback = %v, full = %v", positions(fallback), positions(full))
		}
		if len(fallback) != 5 {
			t.Errorf("len = %d, want 5", len(fallback))
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Rank(ix, []float32{1, 2, 3}, nil, 5)
		if !domain.IsKind(err, domain.KindEmbedding) {
			t.Errorf("Rank() error = %v, want embedding error", err)
		}
	})

	t.Run("candidate out of range", func(t *testing.T) {
		_, err := Rank(ix, []float32{1, 2}, []int{99}, 5)
		if !domain.IsKind(err, domain.KindRetrievalUnavailable) {
			t.Errorf("Rank() error = %v, want retrieval unavailable", err)
		}
	})
}

func positions(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func TestRetriever_Retrieve(t *testing.T) {
	store := NewStore()
	store.Swap(mustIndex(t))
	emb := &stubEmbedder{vec: []float32{3, 0}}
	r := NewRetriever(store, emb, 2, nil)

	passages, err := r.Retrieve(context.Background(), "q", domain.ProviderClalit, domain.TierGold)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("len = %d, want 2", len(passages))
	}
	if passages[0].Chunk.Text != "clalit gold" {
		t.Errorf("first passage = %q, want clalit gold", passages[0].Chunk.Text)
	}
	for _, p := range passages {
		if p.Chunk.Provider.IsSet() && p.Chunk.Provider != domain.ProviderClalit {
			t.Errorf("leaked provider %q", p.Chunk.Provider)
		}
	}
}

func TestRetriever_NoIndexSkipsEmbedding(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0, 0}}
	r := NewRetriever(NewStore(), emb, 5, nil)

	_, err := r.Retrieve(context.Background(), "q", domain.ProviderClalit, domain.TierGold)
	if !domain.IsKind(err, domain.KindRetrievalUnavailable) {
		t.Fatalf("Retrieve() error = %v, want retrieval unavailable", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	store := NewStore()
	store.Swap(mustIndex(t))
	r := NewRetriever(store, &stubEmbedder{err: errors.New("down")}, 5, nil)

	_, err := r.Retrieve(context.Background(), "q", domain.ProviderClalit, domain.TierGold)
	if !domain.IsKind(err, domain.KindEmbedding) {
		t.Fatalf("Retrieve() error = %v, want embedding error", err)
	}
}

func TestRetriever_FallbackWhenNothingMatches(t *testing.T) {
	chunks := []domain.KnowledgeChunk{
		{Text: "a", Provider: domain.ProviderClalit, Tier: domain.TierGold},
		{Text: "b", Provider: domain.ProviderClalit, Tier: domain.TierSilver},
	}
	ix, err := NewIndex(chunks, [][]float32{{0}, {1}}, Meta{})
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	store := NewStore()
	store.Swap(ix)
	r := NewRetriever(store, &stubEmbedder{vec: []float32{1}}, 5, nil)

	passages, err := r.Retrieve(context.Background(), "q", domain.ProviderMaccabi, domain.TierBronze)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 2 || passages[0].Position != 1 {
		t.Errorf("Retrieve() = %+v, want unrestricted ranking", passages)
	}
}
