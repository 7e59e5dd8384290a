package registration

import (
	"testing"

	"github.com/tjfontaine/hmo-assistant/internal/llm/registry"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
)

func TestRegisterBuiltins(t *testing.T) {
	RegisterBuiltins()
	RegisterBuiltins()

	for _, typ := range []string{"openai", "azure"} {
		if !registry.IsRegistered(typ) {
			t.Errorf("backend %q not registered", typ)
		}
	}

	backend, err := registry.CreateFromConfig(config.LLMConfig{
		Type:           "openai",
		APIKey:         "sk-test",
		ChatModel:      "gpt-4o",
		EmbeddingModel: "text-embedding-ada-002",
	})
	if err != nil {
		t.Fatalf("CreateFromConfig() error = %v", err)
	}
	if backend.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", backend.Name())
	}
}
