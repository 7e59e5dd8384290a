// Package identity maps free-text provider and tier tokens to canonical values.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

var providerAliases = map[string]domain.Provider{
	"maccabi":  domain.ProviderMaccabi,
	"מכבי":     domain.ProviderMaccabi,
	"meuhedet": domain.ProviderMeuhedet,
	"מאוחדת":   domain.ProviderMeuhedet,
	"clalit":   domain.ProviderClalit,
	"כללית":    domain.ProviderClalit,
}

var tierAliases = map[string]domain.Tier{
	"gold":   domain.TierGold,
	"זהב":    domain.TierGold,
	"silver": domain.TierSilver,
	"כסף":    domain.TierSilver,
	"bronze": domain.TierBronze,
	"ארד":    domain.TierBronze,
}

// ProviderConstraint and TierConstraint describe the accepted values.
const (
	ProviderConstraint = "HMO must be one of: Maccabi, Meuhedet, Clalit."
	TierConstraint     = "Insurance tier must be one of: Gold, Silver, Bronze."
)

// Fold trims, NFC-normalizes and case-folds a token for alias lookup.
func Fold(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	// cases.Caser is stateful, so each call gets its own.
	return cases.Fold().String(s)
}

// ParseProvider resolves a single provider token.
func ParseProvider(raw string) (domain.Provider, error) {
	if p, ok := providerAliases[Fold(raw)]; ok {
		return p, nil
	}
	return domain.ProviderUnset, domain.ErrInvalidIdentity(ProviderConstraint).WithField("hmo")
}

// ParseTier resolves a single tier token.
func ParseTier(raw string) (domain.Tier, error) {
	if t, ok := tierAliases[Fold(raw)]; ok {
		return t, nil
	}
	return domain.TierUnset, domain.ErrInvalidIdentity(TierConstraint).WithField("tier")
}

// Normalize resolves both tokens. Either failing fails the whole call.
func Normalize(providerRaw, tierRaw string) (domain.Provider, domain.Tier, error) {
	p, err := ParseProvider(providerRaw)
	if err != nil {
		return domain.ProviderUnset, domain.TierUnset, err
	}
	t, err := ParseTier(tierRaw)
	if err != nil {
		return domain.ProviderUnset, domain.TierUnset, err
	}
	return p, t, nil
}

// ParseOptional resolves fields that may legitimately be empty. Empty input
// stays unset; anything else must resolve.
func ParseOptional(providerRaw, tierRaw string) (domain.Provider, domain.Tier, error) {
	var (
		p   domain.Provider
		t   domain.Tier
		err error
	)
	if strings.TrimSpace(providerRaw) != "" {
		if p, err = ParseProvider(providerRaw); err != nil {
			return domain.ProviderUnset, domain.TierUnset, err
		}
	}
	if strings.TrimSpace(tierRaw) != "" {
		if t, err = ParseTier(tierRaw); err != nil {
			return domain.ProviderUnset, domain.TierUnset, err
		}
	}
	return p, t, nil
}
