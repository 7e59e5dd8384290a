// Package azure provides an Azure OpenAI backend built on go-openai.
package azure

import (
	"context"
	"fmt"
	"math"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/llm/registry"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
)

// BackendType is the backend type identifier used in configuration.
const BackendType = "azure"

// Backend implements llm.Backend on an Azure OpenAI resource. Model names in
// configuration are deployment names.
type Backend struct {
	client          *goopenai.Client
	chatDeployment  string
	embedDeployment string
}

var _ llm.Backend = (*Backend)(nil)

// New creates a backend for the resource at endpoint.
func New(apiKey, endpoint, apiVersion, chatDeployment, embedDeployment string, httpClient *http.Client) *Backend {
	cfg := goopenai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	// Deployments are addressed by the configured name verbatim.
	cfg.AzureModelMapperFunc = func(model string) string { return model }
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &Backend{
		client:          goopenai.NewClientWithConfig(cfg),
		chatDeployment:  chatDeployment,
		embedDeployment: embedDeployment,
	}
}

// Name returns the backend type.
func (b *Backend) Name() string { return BackendType }

// sdkTemperature keeps a zero temperature on the wire; go-openai omits a
// literal 0 and the service then applies its own default.
func sdkTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// Complete sends one chat-completion request.
func (b *Backend) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	wire := goopenai.ChatCompletionRequest{
		Model:       b.chatDeployment,
		Messages:    toSDKMessages(req.Messages),
		Temperature: sdkTemperature(req.Temperature),
	}
	if len(req.Tools) > 0 {
		wire.Tools = toSDKTools(req.Tools)
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
		FinishReason: string(choice.FinishReason),
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
	resp, err := b.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(b.embedDeployment),
	})
	if err != nil {
		return nil, domain.ErrEmbedding("embedding request failed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.ErrEmbedding("embedding response is empty", nil)
	}
	return resp.Data[0].Embedding, nil
}

func toSDKMessages(msgs []domain.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		sm := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = sm
	}
	return out
}

func toSDKTools(tools []llm.ToolSpec) []goopenai.Tool {
	out := make([]goopenai.Tool, len(tools))
	for i, t := range tools {
		out[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// CreateFromConfig creates a backend from configuration.
func CreateFromConfig(cfg config.LLMConfig) (llm.Backend, error) {
	return New(cfg.APIKey, cfg.BaseURL, cfg.APIVersion, cfg.ChatModel, cfg.EmbeddingModel, nil), nil
}

// ValidateConfig validates the backend configuration.
func ValidateConfig(cfg config.LLMConfig) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url (resource endpoint) is required")
	}
	if cfg.ChatModel == "" || cfg.EmbeddingModel == "" {
		return fmt.Errorf("chat_model and embedding_model deployments are required")
	}
	return nil
}

// Register adds the azure factory to the backend registry.
func Register() {
	registry.RegisterFactory(registry.Factory{
		Type:           BackendType,
		Description:    "Azure OpenAI deployments",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}
