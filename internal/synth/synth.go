// Package synth builds grounded answers from retrieved passages.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/tokens"
)

// Request carries everything a grounded answer depends on.
type Request struct {
	Question string
	Passages []string
	Provider domain.Provider
	Tier     domain.Tier
	Language domain.Language
}

// Synthesizer turns passages into an answer with one completion call.
type Synthesizer struct {
	completer   llm.Completer
	temperature float32
	model       string
	counter     *tokens.Counter
	logger      *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTokenCounter logs the prompt size of each request, counted for model.
func WithTokenCounter(counter *tokens.Counter, model string) Option {
	return func(s *Synthesizer) {
		s.counter = counter
		s.model = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// New creates a Synthesizer.
func New(completer llm.Completer, temperature float32, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		completer:   completer,
		temperature: temperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the model's raw answer text. There are no retries;
// failures come back as CompletionError.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	prompt := BuildPrompt(req)

	if s.counter != nil {
		if n, err := s.counter.CountMessages(s.model, []string{prompt}); err == nil {
			s.logger.DebugContext(ctx, "answer prompt size",
				slog.Int("tokens", n),
				slog.Int("passages", len(req.Passages)),
			)
		}
	}

	resp, err := s.completer.Complete(ctx, &llm.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature: s.temperature,
	})
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return "", err
		}
		return "", domain.ErrCompletion(err)
	}
	return resp.Content, nil
}

// BuildPrompt renders the grounding instruction. Passages are inserted
// verbatim in rank order.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is a member of %s (%s), insurance tier %s (%s).\n",
		req.Provider.Label(domain.English), req.Provider.Label(domain.Hebrew),
		req.Tier.Label(domain.English), req.Tier.Label(domain.Hebrew))
	b.WriteString("Based on the user's HMO and insurance tier, answer the question below using only the information provided.\n")
	b.WriteString("If the information does not cover the question, say so instead of guessing.\n")
	fmt.Fprintf(&b, "Write the answer in %s.\n\n", req.Language.Name())

	b.WriteString("Information:\n")
	if len(req.Passages) == 0 {
		b.WriteString("- (no relevant information was found)\n")
	}
	for _, p := range req.Passages {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}

	b.WriteString("\nUser's question: ")
	b.WriteString(req.Question)
	return b.String()
}
