package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

type fakeCompleter struct {
	reply string
	err   error
	last  *CompletionRequest
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Content: f.reply}, nil
}

func TestCompletionTranslator_Translate(t *testing.T) {
	fc := &fakeCompleter{reply: "  מה הכיסוי לטיפולי שיניים?\n"}
	tr := NewCompletionTranslator(fc, 0)

	got, err := tr.Translate(context.Background(), "What is the dental coverage?", domain.English, domain.Hebrew)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "מה הכיסוי לטיפולי שיניים?" {
		t.Errorf("Translate() = %q", got)
	}

	sys := fc.last.Messages[0].Content
	if !strings.Contains(sys, "from English to Hebrew") {
		t.Errorf("system prompt missing direction: %q", sys)
	}
	if !strings.Contains(sys, "HMO -> קופת חולים") {
		t.Errorf("system prompt missing glossary: %q", sys)
	}
	if fc.last.Messages[1].Content != "What is the dental coverage?" {
		t.Errorf("user message = %q", fc.last.Messages[1].Content)
	}
	if len(fc.last.Tools) != 0 {
		t.Errorf("translation request carried tools")
	}
}

func TestCompletionTranslator_SameLanguageIsNoop(t *testing.T) {
	fc := &fakeCompleter{}
	tr := NewCompletionTranslator(fc, 0)

	got, err := tr.Translate(context.Background(), "שלום", domain.Hebrew, domain.Hebrew)
	if err != nil || got != "שלום" {
		t.Fatalf("Translate() = %q, %v", got, err)
	}
	if fc.calls != 0 {
		t.Errorf("completer called %d times, want 0", fc.calls)
	}
}

func TestCompletionTranslator_Failure(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"completer error", &fakeCompleter{err: errors.New("down")}},
		{"empty reply", &fakeCompleter{reply: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompletionTranslator(tt.fc, 0).Translate(context.Background(), "hi", domain.English, domain.Hebrew)
			if !domain.IsKind(err, domain.KindTranslation) {
				t.Errorf("Translate() error = %v, want translation error", err)
			}
		})
	}
}
