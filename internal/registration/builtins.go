package registration

import (
	"sync"

	"github.com/tjfontaine/hmo-assistant/internal/llm/azure"
	llmopenai "github.com/tjfontaine/hmo-assistant/internal/llm/openai"
)

var once sync.Once

// RegisterBuiltins registers the built-in LLM backends explicitly. It is
// called from cmd/assistant and tests before a backend is created from
// config, and is safe to call more than once.
func RegisterBuiltins() {
	once.Do(func() {
		llmopenai.Register()
		azure.Register()
	})
}
