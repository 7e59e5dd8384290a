package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

// glossary pins domain terms so translated questions match knowledge-base wording.
var glossary = []struct{ en, he string }{
	{"HMO", "קופת חולים"},
	{"insurance tier", "רמת ביטוח"},
	{"medical services", "שירותי בריאות"},
	{"Maccabi", "מכבי"},
	{"Clalit", "כללית"},
	{"Meuhedet", "מאוחדת"},
	{"Gold", "זהב"},
	{"Silver", "כסף"},
	{"Bronze", "ארד"},
}

// Translator rewrites text from one language into another.
type Translator interface {
	Translate(ctx context.Context, text string, from, to domain.Language) (string, error)
}

// CompletionTranslator implements Translator with a single completion call.
type CompletionTranslator struct {
	completer   Completer
	temperature float32
}

// NewCompletionTranslator creates a translator on top of a completer.
func NewCompletionTranslator(c Completer, temperature float32) *CompletionTranslator {
	return &CompletionTranslator{completer: c, temperature: temperature}
}

// Translate returns text unchanged when the languages match.
func (t *CompletionTranslator) Translate(ctx context.Context, text string, from, to domain.Language) (string, error) {
	if from == to || strings.TrimSpace(text) == "" {
		return text, nil
	}

	resp, err := t.completer.Complete(ctx, &CompletionRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: translationPrompt(from, to)},
			{Role: domain.RoleUser, Content: text},
		},
		Temperature: t.temperature,
	})
	if err != nil {
		return "", domain.ErrTranslation(err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", domain.ErrTranslation(fmt.Errorf("empty translation"))
	}
	return out, nil
}

func translationPrompt(from, to domain.Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the user's message from %s to %s. ", from.Name(), to.Name())
	b.WriteString("Reply with the translation only, without quotes or commentary.\n")
	b.WriteString("Use these fixed translations for domain terms:\n")
	for _, g := range glossary {
		if to == domain.Hebrew {
			fmt.Fprintf(&b, "- %s -> %s\n", g.en, g.he)
		} else {
			fmt.Fprintf(&b, "- %s -> %s\n", g.he, g.en)
		}
	}
	return b.String()
}
