// Package slots drives the identity-collection dialogue through tool calls.
package slots

import (
	"encoding/json"
	"fmt"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/identity"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
)

// Tool names as exposed to the model.
const (
	ToolCollectProvider = "collect_hmo"
	ToolCollectTier     = "collect_insurance_tier"
	ToolConfirm         = "confirm_information"
)

// RestartPolicy decides what a declined confirmation does to collected fields.
type RestartPolicy int

const (
	// RestartClear forgets provider and tier so collection starts over.
	RestartClear RestartPolicy = iota
	// RestartRetain keeps the fields and asks for confirmation again.
	RestartRetain
)

// ParseRestartPolicy maps the configuration value.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "", "clear":
		return RestartClear, nil
	case "retain":
		return RestartRetain, nil
	default:
		return RestartClear, fmt.Errorf("unknown restart policy %q", s)
	}
}

// Invocation is a decoded tool call. The set of implementations is closed.
type Invocation interface {
	ToolName() string
	apply(rec *domain.IdentityRecord, env applyEnv) Result
}

type applyEnv struct {
	lang   domain.Language
	policy RestartPolicy
}

// CollectProvider records the user's HMO.
type CollectProvider struct {
	HMO string `json:"hmo"`
}

// CollectTier records the user's membership tier.
type CollectTier struct {
	Tier string `json:"tier"`
}

// Confirm records the user's yes/no answer.
type Confirm struct {
	Confirmation string `json:"confirmation"`
}

func (CollectProvider) ToolName() string { return ToolCollectProvider }
func (CollectTier) ToolName() string     { return ToolCollectTier }
func (Confirm) ToolName() string         { return ToolConfirm }

// Decode turns a raw tool call into an Invocation.
func Decode(call domain.ToolCall) (Invocation, error) {
	var (
		inv Invocation
		err error
	)
	switch call.Name {
	case ToolCollectProvider:
		var v CollectProvider
		err = json.Unmarshal([]byte(call.Arguments), &v)
		inv = v
	case ToolCollectTier:
		var v CollectTier
		err = json.Unmarshal([]byte(call.Arguments), &v)
		inv = v
	case ToolConfirm:
		var v Confirm
		err = json.Unmarshal([]byte(call.Arguments), &v)
		inv = v
	default:
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", call.Name, err)
	}
	return inv, nil
}

// Result is the typed outcome of one tool invocation.
type Result interface {
	ToolName() string
	// Failure returns the validation failure, or nil if the call was applied.
	Failure() *domain.Error
	// Reply is the human-readable next step.
	Reply() string
}

// ProviderResult is the outcome of collect_hmo.
type ProviderResult struct {
	Message  string          `json:"message"`
	Provider domain.Provider `json:"hmo,omitempty"`
	Error    *domain.Error   `json:"error,omitempty"`
}

// TierResult is the outcome of collect_insurance_tier.
type TierResult struct {
	Message string        `json:"message"`
	Tier    domain.Tier   `json:"tier,omitempty"`
	Error   *domain.Error `json:"error,omitempty"`
}

// ConfirmResult is the outcome of confirm_information.
type ConfirmResult struct {
	Message   string        `json:"message"`
	Confirmed *bool         `json:"confirmed"`
	Restart   bool          `json:"restart,omitempty"`
	Error     *domain.Error `json:"error,omitempty"`
}

func (ProviderResult) ToolName() string { return ToolCollectProvider }
func (TierResult) ToolName() string     { return ToolCollectTier }
func (ConfirmResult) ToolName() string  { return ToolConfirm }

func (r ProviderResult) Failure() *domain.Error { return r.Error }
func (r TierResult) Failure() *domain.Error     { return r.Error }
func (r ConfirmResult) Failure() *domain.Error  { return r.Error }

func (r ProviderResult) Reply() string { return r.Message }
func (r TierResult) Reply() string     { return r.Message }
func (r ConfirmResult) Reply() string  { return r.Message }

func (c CollectProvider) apply(rec *domain.IdentityRecord, env applyEnv) Result {
	p, err := identity.ParseProvider(c.HMO)
	if err != nil {
		return ProviderResult{
			Message: text(env.lang, msgProviderInvalid),
			Error:   domain.ErrValidation(identity.ProviderConstraint).WithField("hmo"),
		}
	}
	if rec.Provider != p {
		rec.Provider = p
		rec.Confirmed = domain.ConfirmationUnset
	}
	next := msgAskTier
	if rec.Tier.IsSet() {
		next = msgAskConfirm
	}
	return ProviderResult{Message: text(env.lang, next), Provider: p}
}

func (c CollectTier) apply(rec *domain.IdentityRecord, env applyEnv) Result {
	t, err := identity.ParseTier(c.Tier)
	if err != nil {
		return TierResult{
			Message: text(env.lang, msgTierInvalid),
			Error:   domain.ErrValidation(identity.TierConstraint).WithField("tier"),
		}
	}
	if rec.Tier != t {
		rec.Tier = t
		rec.Confirmed = domain.ConfirmationUnset
	}
	next := msgAskConfirm
	if !rec.Provider.IsSet() {
		next = msgAskProvider
	}
	return TierResult{Message: text(env.lang, next), Tier: t}
}

func (c Confirm) apply(rec *domain.IdentityRecord, env applyEnv) Result {
	switch identity.Fold(c.Confirmation) {
	case "yes", "כן":
		if !rec.Complete() {
			return ConfirmResult{
				Message:   text(env.lang, msgConfirmIncomplete),
				Confirmed: rec.Confirmed.Bool(),
				Error:     domain.ErrValidation("both HMO and insurance tier must be collected before confirming").WithField("confirmation"),
			}
		}
		rec.Confirmed = domain.ConfirmationYes
		return ConfirmResult{Message: text(env.lang, msgConfirmed), Confirmed: rec.Confirmed.Bool()}

	case "no", "לא":
		rec.Confirmed = domain.ConfirmationNo
		if env.policy == RestartClear {
			rec.Provider = domain.ProviderUnset
			rec.Tier = domain.TierUnset
			return ConfirmResult{Message: text(env.lang, msgRestart), Confirmed: rec.Confirmed.Bool(), Restart: true}
		}
		return ConfirmResult{Message: text(env.lang, msgCorrect), Confirmed: rec.Confirmed.Bool()}

	default:
		rec.Confirmed = domain.ConfirmationNo
		return ConfirmResult{Message: text(env.lang, msgAskConfirm), Confirmed: rec.Confirmed.Bool()}
	}
}

// Apply runs inv against rec under the given language and restart policy.
func Apply(inv Invocation, rec *domain.IdentityRecord, lang domain.Language, policy RestartPolicy) Result {
	return inv.apply(rec, applyEnv{lang: lang, policy: policy})
}

// Tools returns the tool definitions offered to the model.
func Tools() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        ToolCollectProvider,
			Description: "Record the user's HMO (health fund). Call this once the user names their HMO.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"hmo": map[string]any{
						"type":        "string",
						"description": "The HMO name as the user gave it: Maccabi, Meuhedet or Clalit (English or Hebrew).",
					},
				},
				"required": []string{"hmo"},
			},
		},
		{
			Name:        ToolCollectTier,
			Description: "Record the user's insurance membership tier.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tier": map[string]any{
						"type":        "string",
						"description": "The tier as the user gave it: Gold, Silver or Bronze (English or Hebrew).",
					},
				},
				"required": []string{"tier"},
			},
		},
		{
			Name:        ToolConfirm,
			Description: "Record whether the user confirmed that the collected HMO and tier are correct.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirmation": map[string]any{
						"type":        "string",
						"description": "The user's answer: yes or no.",
					},
				},
				"required": []string{"confirmation"},
			},
		},
	}
}
