// Package openai adapts the in-repo OpenAI HTTP client to the llm capabilities.
package openai

import (
	"context"
	"fmt"
	"net/http"

	api "github.com/tjfontaine/hmo-assistant/internal/api/openai"
	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/llm/registry"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
)

// BackendType is the backend type identifier used in configuration.
const BackendType = "openai"

// Backend implements llm.Backend against the OpenAI REST API or any
// compatible endpoint.
type Backend struct {
	client         *api.Client
	chatModel      string
	embeddingModel string
}

var _ llm.Backend = (*Backend)(nil)

// Option configures the backend.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the backend at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient sets the HTTP client, e.g. a recording transport in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a backend.
func New(apiKey, chatModel, embeddingModel string, opts ...Option) *Backend {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []api.ClientOption
	if o.baseURL != "" {
		clientOpts = append(clientOpts, api.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}

	return &Backend{
		client:         api.NewClient(apiKey, clientOpts...),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

// Name returns the backend type.
func (b *Backend) Name() string { return BackendType }

// Complete sends one chat-completion request.
func (b *Backend) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	temp := req.Temperature
	wire := &api.ChatCompletionRequest{
		Model:       b.chatModel,
		Messages:    toWireMessages(req.Messages),
		Temperature: &temp,
	}
	if len(req.Tools) > 0 {
		wire.Tools = toWireTools(req.Tools)
		wire.ToolChoice = "auto"
	}

	resp, err := b.client.CreateChatCompletion(ctx, wire)
	if err != nil {
		return nil, domain.ErrCompletion(err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.ErrCompletion(fmt.Errorf("response has no choices"))
	}

	choice := resp.Choices[0]
	out := &llm.Completion{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Embed returns the embedding of text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, &api.EmbeddingRequest{
		Model: b.embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, domain.ErrEmbedding("embedding request failed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.ErrEmbedding("embedding response is empty", nil)
	}
	return resp.Data[0].Embedding, nil
}

func toWireMessages(msgs []domain.Message) []api.ChatCompletionMessage {
	out := make([]api.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		wm := api.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, api.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: api.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = wm
	}
	return out
}

func toWireTools(tools []llm.ToolSpec) []api.Tool {
	out := make([]api.Tool, len(tools))
	for i, t := range tools {
		out[i] = api.Tool{
			Type: "function",
			Function: api.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// CreateFromConfig creates a backend from configuration.
// This function is used by the backend registry factory.
func CreateFromConfig(cfg config.LLMConfig) (llm.Backend, error) {
	var opts []Option
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.APIKey, cfg.ChatModel, cfg.EmbeddingModel, opts...), nil
}

// ValidateConfig validates the backend configuration.
func ValidateConfig(cfg config.LLMConfig) error {
	// API key is optional for compatible endpoints (some local models don't need it)
	if cfg.ChatModel == "" {
		return fmt.Errorf("chat_model is required")
	}
	if cfg.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}
	return nil
}

// Register adds the openai factory to the backend registry.
func Register() {
	registry.RegisterFactory(registry.Factory{
		Type:           BackendType,
		Description:    "OpenAI API or any OpenAI-compatible endpoint",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}
