// Package registry provides LLM backend factory registration and lookup.
//
// Backend packages expose a Register function that calls RegisterFactory;
// internal/registration wires the built-in ones explicitly.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
)

// Factory defines how to create a backend of a specific type.
type Factory struct {
	// Type is the backend type identifier used in configuration
	// (e.g., "openai", "azure")
	Type string

	// Description provides a human-readable description of the backend
	Description string

	// Create instantiates a new backend from configuration.
	Create func(cfg config.LLMConfig) (llm.Backend, error)

	// ValidateConfig performs backend-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.LLMConfig) error
}

var (
	factoryMu  sync.RWMutex
	factoryMap = make(map[string]Factory)
)

// RegisterFactory registers a backend factory. Panics if a factory with the
// same type is already registered.
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("backend factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("backend factory %q must have a Create function", f.Type))
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("backend factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
}

// GetFactory returns the factory for a backend type, if registered.
func GetFactory(backendType string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[backendType]
	return f, ok
}

// ListTypes returns all registered backend type names, sorted.
func ListTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]string, 0, len(factoryMap))
	for t := range factoryMap {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsRegistered returns true if a backend type is registered.
func IsRegistered(backendType string) bool {
	_, ok := GetFactory(backendType)
	return ok
}

// CreateFromConfig creates a backend using the registered factory.
func CreateFromConfig(cfg config.LLMConfig) (llm.Backend, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown llm type: %s (registered types: %v)", cfg.Type, ListTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for llm type %s: %w", cfg.Type, err)
		}
	}

	return f.Create(cfg)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]Factory)
}
