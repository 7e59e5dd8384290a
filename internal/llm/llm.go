// Package llm defines the completion and embedding capabilities the assistant
// depends on, independent of any vendor SDK.
package llm

import (
	"context"

	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// CompletionRequest is a single chat-completion call.
type CompletionRequest struct {
	Messages    []domain.Message
	Tools       []ToolSpec
	Temperature float32
}

// Completion is the model's reply.
type Completion struct {
	Content      string
	ToolCalls    []domain.ToolCall
	FinishReason string
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is a vendor that provides both capabilities.
type Backend interface {
	Completer
	Embedder
	Name() string
}
