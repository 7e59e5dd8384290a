package domain

import "strings"

// Provider identifies one of the supported HMOs.
type Provider string

const (
	ProviderUnset    Provider = ""
	ProviderMaccabi  Provider = "maccabi"
	ProviderMeuhedet Provider = "meuhedet"
	ProviderClalit   Provider = "clalit"
)

// Providers lists every known provider in display order.
var Providers = []Provider{ProviderMaccabi, ProviderMeuhedet, ProviderClalit}

var providerLabels = map[Provider][2]string{
	ProviderMaccabi:  {"Maccabi", "מכבי"},
	ProviderMeuhedet: {"Meuhedet", "מאוחדת"},
	ProviderClalit:   {"Clalit", "כללית"},
}

// IsSet reports whether the provider has been collected.
func (p Provider) IsSet() bool { return p != ProviderUnset }

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	_, ok := providerLabels[p]
	return ok
}

// Label returns the display name of the provider in the given language.
func (p Provider) Label(lang Language) string {
	labels, ok := providerLabels[p]
	if !ok {
		return ""
	}
	if lang == Hebrew {
		return labels[1]
	}
	return labels[0]
}

// Tier identifies a membership tier.
type Tier string

const (
	TierUnset  Tier = ""
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
	TierBronze Tier = "bronze"
)

// Tiers lists every known tier in display order.
var Tiers = []Tier{TierGold, TierSilver, TierBronze}

var tierLabels = map[Tier][2]string{
	TierGold:   {"Gold", "זהב"},
	TierSilver: {"Silver", "כסף"},
	TierBronze: {"Bronze", "ארד"},
}

// IsSet reports whether the tier has been collected.
func (t Tier) IsSet() bool { return t != TierUnset }

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierLabels[t]
	return ok
}

// Label returns the display name of the tier in the given language.
func (t Tier) Label(lang Language) string {
	labels, ok := tierLabels[t]
	if !ok {
		return ""
	}
	if lang == Hebrew {
		return labels[1]
	}
	return labels[0]
}

// Language is a session language.
type Language string

const (
	English Language = "en"
	Hebrew  Language = "he"
)

// KnowledgeLanguage is the language the knowledge base is written in.
const KnowledgeLanguage = Hebrew

// ParseLanguage resolves a language code or name. Empty input defaults to English.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "en", "english":
		return English, nil
	case "he", "hebrew", "עברית":
		return Hebrew, nil
	default:
		return "", ErrValidation("unsupported language " + s).WithField("language")
	}
}

// Name returns the English name of the language, used inside prompts.
func (l Language) Name() string {
	if l == Hebrew {
		return "Hebrew"
	}
	return "English"
}

// Confirmation is the tri-state confirmation flag.
type Confirmation int

const (
	ConfirmationUnset Confirmation = iota
	ConfirmationYes
	ConfirmationNo
)

// ConfirmationFromBool converts the wire form (null/true/false).
func ConfirmationFromBool(b *bool) Confirmation {
	switch {
	case b == nil:
		return ConfirmationUnset
	case *b:
		return ConfirmationYes
	default:
		return ConfirmationNo
	}
}

// Bool returns the wire form of the confirmation.
func (c Confirmation) Bool() *bool {
	switch c {
	case ConfirmationYes:
		v := true
		return &v
	case ConfirmationNo:
		v := false
		return &v
	default:
		return nil
	}
}

// Stage is the slot-collection stage derived from an IdentityRecord.
type Stage int

const (
	StageAwaitProvider Stage = iota
	StageAwaitTier
	StageAwaitConfirmation
	StageConfirmed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitProvider:
		return "await_provider"
	case StageAwaitTier:
		return "await_tier"
	case StageAwaitConfirmation:
		return "await_confirmation"
	case StageConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Phase is the coarse dialogue phase.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseConfirmed  Phase = "confirmed"
)

// IdentityRecord holds the collected identity of a session.
type IdentityRecord struct {
	Provider  Provider
	Tier      Tier
	Confirmed Confirmation
}

// Stage derives the current collection stage. A record only reaches
// StageConfirmed with both provider and tier set.
func (r IdentityRecord) Stage() Stage {
	switch {
	case !r.Provider.IsSet():
		return StageAwaitProvider
	case !r.Tier.IsSet():
		return StageAwaitTier
	case r.Confirmed != ConfirmationYes:
		return StageAwaitConfirmation
	default:
		return StageConfirmed
	}
}

// Phase derives the dialogue phase from the stage.
func (r IdentityRecord) Phase() Phase {
	if r.Stage() == StageConfirmed {
		return PhaseConfirmed
	}
	return PhaseCollecting
}

// Complete reports whether both identity fields are set.
func (r IdentityRecord) Complete() bool {
	return r.Provider.IsSet() && r.Tier.IsSet()
}

// Role is the author of a dialogue turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the dialogue transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// KnowledgeChunk is one passage of the knowledge base. Provider and Tier are
// unset for general passages that apply to everyone.
type KnowledgeChunk struct {
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Service  string   `json:"service,omitempty"`
	Section  string   `json:"section,omitempty"`
	Provider Provider `json:"hmo,omitempty"`
	Tier     Tier     `json:"tier,omitempty"`
}
