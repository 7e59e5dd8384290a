// Package dialogue routes each user turn to identity collection or to
// grounded question answering.
package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/identity"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
	"github.com/tjfontaine/hmo-assistant/internal/slots"
	"github.com/tjfontaine/hmo-assistant/internal/synth"
	"github.com/tjfontaine/hmo-assistant/internal/telemetry"
)

// Collector advances identity collection by one turn.
type Collector interface {
	Advance(ctx context.Context, in slots.TurnInput) (*slots.TurnOutput, error)
}

// Retriever returns identity-filtered passages for a question.
type Retriever interface {
	Ready() bool
	Retrieve(ctx context.Context, question string, p domain.Provider, t domain.Tier) ([]retrieval.Passage, error)
}

// Answerer writes the grounded answer.
type Answerer interface {
	Synthesize(ctx context.Context, req synth.Request) (string, error)
}

// TurnRequest is one inbound user turn with the state the client carries.
type TurnRequest struct {
	Language  string           `json:"language"`
	Provider  string           `json:"provider,omitempty"`
	Tier      string           `json:"tier,omitempty"`
	Confirmed *bool            `json:"confirmed"`
	Message   string           `json:"message"`
	History   []domain.Message `json:"history,omitempty"`
}

// Source identifies a passage an answer was grounded on.
type Source struct {
	Position int     `json:"position"`
	Category string  `json:"category,omitempty"`
	Service  string  `json:"service,omitempty"`
	Section  string  `json:"section,omitempty"`
	Distance float32 `json:"distance"`
}

// TurnResponse is the outcome of a turn plus the state to send back next time.
type TurnResponse struct {
	Reply     string           `json:"reply"`
	Provider  domain.Provider  `json:"provider,omitempty"`
	Tier      domain.Tier      `json:"tier,omitempty"`
	Confirmed *bool            `json:"confirmed"`
	Stage     string           `json:"stage"`
	Phase     domain.Phase     `json:"phase"`
	History   []domain.Message `json:"history"`
	Sources   []Source         `json:"sources,omitempty"`
	Error     *domain.Error    `json:"error,omitempty"`
}

var apologies = map[domain.Language]string{
	domain.English: "Sorry, I couldn't process that right now. Please try again.",
	domain.Hebrew:  "מצטער/ת, לא הצלחתי לטפל בבקשה כרגע. אנא נסה/י שוב.",
}

// Orchestrator owns the routing rule between the two phases.
type Orchestrator struct {
	collector  Collector
	retriever  Retriever
	translator llm.Translator
	answerer   Answerer
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(collector Collector, retriever Retriever, translator llm.Translator, answerer Answerer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		collector:  collector,
		retriever:  retriever,
		translator: translator,
		answerer:   answerer,
		logger:     logger,
	}
}

// HandleTurn processes one turn. Failures of external capabilities come back
// in-band as an apology with the caller's state unchanged; everything else is
// returned as an error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	lang, err := domain.ParseLanguage(req.Language)
	if err != nil {
		return nil, err
	}
	p, t, err := identity.ParseOptional(req.Provider, req.Tier)
	if err != nil {
		return nil, err
	}
	rec := domain.IdentityRecord{Provider: p, Tier: t, Confirmed: domain.ConfirmationFromBool(req.Confirmed)}

	ctx, span := telemetry.Tracer().Start(ctx, "dialogue.turn", trace.WithAttributes(
		attribute.String("language", string(lang)),
		attribute.String("stage", rec.Stage().String()),
	))
	defer span.End()

	var resp *TurnResponse
	if rec.Stage() == domain.StageConfirmed {
		resp, err = o.answer(ctx, lang, rec, req)
	} else {
		resp, err = o.collect(ctx, lang, rec, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Error != nil {
		span.SetAttributes(attribute.String("error.kind", string(resp.Error.Kind)))
	}
	return resp, nil
}

func (o *Orchestrator) collect(ctx context.Context, lang domain.Language, rec domain.IdentityRecord, req TurnRequest) (*TurnResponse, error) {
	out, err := o.collector.Advance(ctx, slots.TurnInput{
		Language:  lang,
		Record:    rec,
		History:   req.History,
		Utterance: req.Message,
	})
	if err != nil {
		return o.apologize(ctx, lang, rec, req.History, err)
	}

	if before, after := rec.Stage(), out.Record.Stage(); before != after {
		o.logger.InfoContext(ctx, "stage changed",
			slog.String("from", before.String()),
			slog.String("to", after.String()),
		)
	}
	return respond(out.Reply, out.Record, out.History), nil
}

func (o *Orchestrator) answer(ctx context.Context, lang domain.Language, rec domain.IdentityRecord, req TurnRequest) (*TurnResponse, error) {
	// Readiness is checked before any external call is made.
	if !o.retriever.Ready() {
		return nil, domain.ErrRetrievalUnavailable("knowledge index is not loaded", nil)
	}

	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, domain.ErrValidation("message is required").WithField("message")
	}

	query := question
	if lang != domain.KnowledgeLanguage {
		translated, err := o.translator.Translate(ctx, question, lang, domain.KnowledgeLanguage)
		if err != nil {
			return o.apologize(ctx, lang, rec, req.History, err)
		}
		o.logger.DebugContext(ctx, "question translated",
			slog.String("from", string(lang)),
			slog.String("query", translated),
		)
		query = translated
	}

	passages, err := o.retriever.Retrieve(ctx, query, rec.Provider, rec.Tier)
	if err != nil {
		return o.apologize(ctx, lang, rec, req.History, err)
	}

	texts := make([]string, len(passages))
	sources := make([]Source, len(passages))
	for i, p := range passages {
		texts[i] = p.Chunk.Text
		sources[i] = Source{
			Position: p.Position,
			Category: p.Chunk.Category,
			Service:  p.Chunk.Service,
			Section:  p.Chunk.Section,
			Distance: p.Distance,
		}
	}

	reply, err := o.answerer.Synthesize(ctx, synth.Request{
		Question: question,
		Passages: texts,
		Provider: rec.Provider,
		Tier:     rec.Tier,
		Language: lang,
	})
	if err != nil {
		return o.apologize(ctx, lang, rec, req.History, err)
	}

	history := make([]domain.Message, len(req.History), len(req.History)+2)
	copy(history, req.History)
	history = append(history,
		domain.Message{Role: domain.RoleUser, Content: req.Message},
		domain.Message{Role: domain.RoleAssistant, Content: reply},
	)

	resp := respond(reply, rec, history)
	resp.Sources = sources
	return resp, nil
}

// apologize turns a capability failure into an in-band reply. Errors of any
// other kind are returned unchanged.
func (o *Orchestrator) apologize(ctx context.Context, lang domain.Language, rec domain.IdentityRecord, history []domain.Message, err error) (*TurnResponse, error) {
	de, ok := domain.AsError(err)
	if !ok {
		return nil, err
	}
	switch de.Kind {
	case domain.KindCompletion, domain.KindEmbedding, domain.KindTranslation:
	default:
		return nil, err
	}

	o.logger.ErrorContext(ctx, "turn failed",
		slog.String("kind", string(de.Kind)),
		slog.String("error", err.Error()),
	)
	resp := respond(apologies[lang], rec, history)
	resp.Error = de
	return resp, nil
}

func respond(reply string, rec domain.IdentityRecord, history []domain.Message) *TurnResponse {
	if history == nil {
		history = []domain.Message{}
	}
	return &TurnResponse{
		Reply:     reply,
		Provider:  rec.Provider,
		Tier:      rec.Tier,
		Confirmed: rec.Confirmed.Bool(),
		Stage:     rec.Stage().String(),
		Phase:     rec.Phase(),
		History:   history,
	}
}
