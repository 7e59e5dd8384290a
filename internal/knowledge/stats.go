package knowledge

import (
	"time"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
)

// Stats summarizes a loaded knowledge base.
type Stats struct {
	Chunks         int                     `json:"chunks"`
	Dimension      int                     `json:"dimension"`
	EmbeddingModel string                  `json:"embedding_model,omitempty"`
	BuildID        string                  `json:"build_id,omitempty"`
	BuiltAt        time.Time               `json:"built_at"`
	ByProvider     map[domain.Provider]int `json:"by_provider"`
	ByTier         map[domain.Tier]int     `json:"by_tier"`
	Untagged       int                     `json:"untagged"`
	Categories     map[string]int          `json:"categories"`
}

// Summarize computes tag coverage for ix.
func Summarize(ix *retrieval.Index) Stats {
	meta := ix.Meta()
	s := Stats{
		Chunks:         ix.Len(),
		Dimension:      ix.Dimension(),
		EmbeddingModel: meta.EmbeddingModel,
		BuildID:        meta.BuildID,
		BuiltAt:        meta.BuiltAt,
		ByProvider:     make(map[domain.Provider]int),
		ByTier:         make(map[domain.Tier]int),
		Categories:     make(map[string]int),
	}

	for _, c := range ix.Chunks() {
		if c.Provider.IsSet() {
			s.ByProvider[c.Provider]++
		}
		if c.Tier.IsSet() {
			s.ByTier[c.Tier]++
		}
		if !c.Provider.IsSet() && !c.Tier.IsSet() {
			s.Untagged++
		}
		if c.Category != "" {
			s.Categories[c.Category]++
		}
	}
	return s
}
