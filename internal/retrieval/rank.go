package retrieval

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

// Filter returns the positions of chunks whose provider and tier are either
// unset or equal to the given identity, in collection order. The result is
// never nil; an empty slice means nothing matched.
func Filter(chunks []domain.KnowledgeChunk, p domain.Provider, t domain.Tier) []int {
	out := make([]int, 0, len(chunks))
	for i, c := range chunks {
		if c.Provider.IsSet() && c.Provider != p {
			continue
		}
		if c.Tier.IsSet() && c.Tier != t {
			continue
		}
		out = append(out, i)
	}
	return out
}

// Hit is a ranked chunk position with its squared L2 distance to the query.
type Hit struct {
	Position int
	Distance float32
}

// Rank returns up to topK positions nearest to query, nearest first. Ties go
// to the lower position. An empty candidate set searches the whole index.
func Rank(ix *Index, query []float32, candidates []int, topK int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, domain.ErrEmbedding(
			fmt.Sprintf("query has dimension %d, index has %d", len(query), ix.dim), nil)
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	var hits []Hit
	if len(candidates) == 0 {
		hits = make([]Hit, len(ix.vectors))
		for i, v := range ix.vectors {
			hits[i] = Hit{Position: i, Distance: squaredL2(query, v)}
		}
	} else {
		hits = make([]Hit, 0, len(candidates))
		seen := make(map[int]struct{}, len(candidates))
		for _, pos := range candidates {
			if pos < 0 || pos >= len(ix.vectors) {
				return nil, domain.ErrRetrievalUnavailable(
					fmt.Sprintf("candidate %d outside index of %d", pos, len(ix.vectors)), nil)
			}
			if _, dup := seen[pos]; dup {
				continue
			}
			seen[pos] = struct{}{}
			hits = append(hits, Hit{Position: pos, Distance: squaredL2(query, ix.vectors[pos])})
		}
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
