package slots

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var systemPrompts = map[domain.Language]*template.Template{
	domain.English: template.Must(template.ParseFS(promptFS, "prompts/system_en.tmpl")),
	domain.Hebrew:  template.Must(template.ParseFS(promptFS, "prompts/system_he.tmpl")),
}

// greetingSeed starts a brand-new conversation so the model opens with a greeting.
const greetingSeed = "Hello"

// emptyToolResult answers tool calls that could not be decoded.
const emptyToolResult = "{}"

// TurnInput is everything one collection turn depends on.
type TurnInput struct {
	Language  domain.Language
	Record    domain.IdentityRecord
	History   []domain.Message
	Utterance string
}

// TurnOutput is the committed result of a collection turn.
type TurnOutput struct {
	Reply   string
	Record  domain.IdentityRecord
	History []domain.Message
	Results []Result
}

// Machine runs collection turns.
type Machine struct {
	completer   llm.Completer
	temperature float32
	maxRounds   int
	policy      RestartPolicy
	logger      *slog.Logger
}

// Config holds Machine tunables.
type Config struct {
	Temperature   float32
	MaxToolRounds int
	RestartPolicy RestartPolicy
}

// NewMachine creates a Machine.
func NewMachine(completer llm.Completer, cfg Config, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = 3
	}
	return &Machine{
		completer:   completer,
		temperature: cfg.Temperature,
		maxRounds:   cfg.MaxToolRounds,
		policy:      cfg.RestartPolicy,
		logger:      logger,
	}
}

// Advance runs one user turn. On error nothing is committed: the caller's
// record and history are left exactly as they were passed in.
func (m *Machine) Advance(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	rec := in.Record
	history := make([]domain.Message, len(in.History), len(in.History)+8)
	copy(history, in.History)

	switch {
	case strings.TrimSpace(in.Utterance) != "":
		history = append(history, domain.Message{Role: domain.RoleUser, Content: in.Utterance})
	case len(history) == 0:
		history = append(history, domain.Message{Role: domain.RoleUser, Content: greetingSeed})
	}

	resp, err := m.complete(ctx, in.Language, rec, history)
	if err != nil {
		return nil, err
	}

	var results []Result
	for rounds := 0; len(resp.ToolCalls) > 0; rounds++ {
		if rounds == m.maxRounds {
			m.logger.WarnContext(ctx, "tool round limit reached, dropping pending calls",
				slog.Int("max_rounds", m.maxRounds),
				slog.Int("pending", len(resp.ToolCalls)),
			)
			break
		}

		history = append(history, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			res, body := m.dispatch(ctx, &rec, in.Language, call)
			if res != nil {
				results = append(results, res)
			}
			history = append(history, domain.Message{
				Role:       domain.RoleTool,
				Content:    body,
				ToolCallID: call.ID,
			})
		}

		resp, err = m.complete(ctx, in.Language, rec, history)
		if err != nil {
			return nil, err
		}
	}

	reply := resp.Content
	if strings.TrimSpace(reply) == "" {
		if len(results) > 0 {
			reply = results[len(results)-1].Reply()
		} else {
			reply = stagePrompt(in.Language, rec.Stage())
		}
	}
	history = append(history, domain.Message{Role: domain.RoleAssistant, Content: reply})

	return &TurnOutput{
		Reply:   reply,
		Record:  rec,
		History: history,
		Results: results,
	}, nil
}

// dispatch decodes and applies one call. Undecodable calls are logged and
// answered with an empty result; the record is not touched.
func (m *Machine) dispatch(ctx context.Context, rec *domain.IdentityRecord, lang domain.Language, call domain.ToolCall) (Result, string) {
	inv, err := Decode(call)
	if err != nil {
		m.logger.WarnContext(ctx, "ignoring tool call",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()),
		)
		return nil, emptyToolResult
	}

	before := rec.Stage()
	res := Apply(inv, rec, lang, m.policy)

	attrs := []any{
		slog.String("tool", call.Name),
		slog.String("stage_before", before.String()),
		slog.String("stage_after", rec.Stage().String()),
	}
	if f := res.Failure(); f != nil {
		attrs = append(attrs, slog.String("rejected", f.Message))
	}
	m.logger.InfoContext(ctx, "tool applied", attrs...)

	body, err := json.Marshal(res)
	if err != nil {
		m.logger.ErrorContext(ctx, "encode tool result", slog.String("error", err.Error()))
		return res, emptyToolResult
	}
	return res, string(body)
}

func (m *Machine) complete(ctx context.Context, lang domain.Language, rec domain.IdentityRecord, history []domain.Message) (*llm.Completion, error) {
	system, err := SystemPrompt(lang, rec)
	if err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(history)+1)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: system})
	msgs = append(msgs, history...)

	resp, err := m.completer.Complete(ctx, &llm.CompletionRequest{
		Messages:    msgs,
		Tools:       Tools(),
		Temperature: m.temperature,
	})
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, domain.ErrCompletion(err)
	}
	return resp, nil
}

// SystemPrompt renders the collection instructions for lang, including what
// has been collected so far.
func SystemPrompt(lang domain.Language, rec domain.IdentityRecord) (string, error) {
	tmpl, ok := systemPrompts[lang]
	if !ok {
		tmpl = systemPrompts[domain.English]
	}

	data := struct {
		Provider string
		Tier     string
		Stage    string
	}{
		Provider: rec.Provider.Label(lang),
		Tier:     rec.Tier.Label(lang),
		Stage:    rec.Stage().String(),
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}
