package identity

import (
	"testing"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

func TestNormalize_Aliases(t *testing.T) {
	tests := []struct {
		provider string
		tier     string
		wantP    domain.Provider
		wantT    domain.Tier
	}{
		{"maccabi", "gold", domain.ProviderMaccabi, domain.TierGold},
		{"MACCABI", "Gold", domain.ProviderMaccabi, domain.TierGold},
		{"  Meuhedet ", " silver", domain.ProviderMeuhedet, domain.TierSilver},
		{"clalit", "BRONZE", domain.ProviderClalit, domain.TierBronze},
		{"מכבי", "זהב", domain.ProviderMaccabi, domain.TierGold},
		{"מאוחדת", "כסף", domain.ProviderMeuhedet, domain.TierSilver},
		{"כללית", "ארד", domain.ProviderClalit, domain.TierBronze},
		{"Clalit", "ארד", domain.ProviderClalit, domain.TierBronze},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.tier, func(t *testing.T) {
			p, tier, err := Normalize(tt.provider, tt.tier)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if p != tt.wantP || tier != tt.wantT {
				t.Errorf("Normalize() = (%q, %q), want (%q, %q)", p, tier, tt.wantP, tt.wantT)
			}
		})
	}
}

func TestNormalize_EveryLabelResolves(t *testing.T) {
	for _, p := range domain.Providers {
		for _, lang := range []domain.Language{domain.English, domain.Hebrew} {
			got, err := ParseProvider(p.Label(lang))
			if err != nil || got != p {
				t.Errorf("ParseProvider(%q) = %q, %v", p.Label(lang), got, err)
			}
		}
	}
	for _, tier := range domain.Tiers {
		for _, lang := range []domain.Language{domain.English, domain.Hebrew} {
			got, err := ParseTier(tier.Label(lang))
			if err != nil || got != tier {
				t.Errorf("ParseTier(%q) = %q, %v", tier.Label(lang), got, err)
			}
		}
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		tier     string
		field    string
	}{
		{"unknown provider", "leumit", "gold", "hmo"},
		{"empty provider", "", "gold", "hmo"},
		{"unknown tier", "maccabi", "platinum", "tier"},
		{"empty tier", "maccabi", "", "tier"},
		{"partial match", "macc", "gold", "hmo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, tier, err := Normalize(tt.provider, tt.tier)
			if err == nil {
				t.Fatal("Normalize() error = nil, want error")
			}
			de, ok := domain.AsError(err)
			if !ok || de.Kind != domain.KindInvalidIdentity {
				t.Fatalf("Normalize() error = %v, want invalid identity", err)
			}
			if de.Field != tt.field {
				t.Errorf("Field = %q, want %q", de.Field, tt.field)
			}
			if p.IsSet() || tier.IsSet() {
				t.Errorf("Normalize() returned partial result (%q, %q)", p, tier)
			}
		})
	}
}

func TestParseOptional(t *testing.T) {
	p, tier, err := ParseOptional("", "")
	if err != nil || p.IsSet() || tier.IsSet() {
		t.Fatalf("ParseOptional(empty) = %q, %q, %v", p, tier, err)
	}

	p, tier, err = ParseOptional("Maccabi", "")
	if err != nil || p != domain.ProviderMaccabi || tier.IsSet() {
		t.Fatalf("ParseOptional(provider) = %q, %q, %v", p, tier, err)
	}

	if _, _, err := ParseOptional("Maccabi", "diamond"); !domain.IsKind(err, domain.KindInvalidIdentity) {
		t.Fatalf("ParseOptional(bad tier) error = %v", err)
	}
}
