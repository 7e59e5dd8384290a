package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. HMO_KNOWLEDGE__TOP_K.
const EnvPrefix = "HMO_"

// Restart policies applied when the user declines confirmation.
const (
	RestartClear  = "clear"
	RestartRetain = "retain"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Dialogue  DialogueConfig  `koanf:"dialogue"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LLMConfig selects and configures the completion and embedding backend.
type LLMConfig struct {
	Type       string `koanf:"type"` // openai, azure
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`    // Custom API endpoint, or the Azure resource endpoint
	APIVersion string `koanf:"api_version"` // Azure only

	ChatModel      string `koanf:"chat_model"`      // Model name, or Azure deployment
	EmbeddingModel string `koanf:"embedding_model"` // Model name, or Azure deployment

	DialogueTemperature    float32 `koanf:"dialogue_temperature"`
	AnswerTemperature      float32 `koanf:"answer_temperature"`
	TranslationTemperature float32 `koanf:"translation_temperature"`
}

type KnowledgeConfig struct {
	Path             string `koanf:"path"`
	TopK             int    `koanf:"top_k"`
	Watch            bool   `koanf:"watch"`
	BuildConcurrency int    `koanf:"build_concurrency"`
	MaxInputTokens   int    `koanf:"max_input_tokens"`
}

type DialogueConfig struct {
	RestartPolicy string `koanf:"restart_policy"` // clear, retain
	MaxToolRounds int    `koanf:"max_tool_rounds"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

var defaults = map[string]any{
	"server.port":                 8080,
	"server.request_timeout":      "60s",
	"llm.type":                    "openai",
	"llm.chat_model":              "gpt-4o",
	"llm.embedding_model":         "text-embedding-ada-002",
	"llm.api_version":             "2024-02-01",
	"llm.dialogue_temperature":    0.4,
	"llm.answer_temperature":      0.3,
	"llm.translation_temperature": 0.0,
	"knowledge.path":              "./data/knowledge.db",
	"knowledge.top_k":             5,
	"knowledge.watch":             true,
	"knowledge.build_concurrency": 4,
	"knowledge.max_input_tokens":  8191,
	"dialogue.restart_policy":     RestartClear,
	"dialogue.max_tool_rounds":    3,
	"telemetry.service_name":      "hmo-assistant",
	"log.level":                   "info",
	"log.format":                  "json",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (if present), applies HMO_ environment overrides and fills
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = substituteEnvVars(cfg.LLM.BaseURL)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = defaultAPIKey(cfg.LLM.Type)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Dialogue.RestartPolicy {
	case RestartClear, RestartRetain:
	default:
		return fmt.Errorf("dialogue.restart_policy must be %q or %q, got %q", RestartClear, RestartRetain, c.Dialogue.RestartPolicy)
	}
	if c.Dialogue.MaxToolRounds < 1 {
		return fmt.Errorf("dialogue.max_tool_rounds must be at least 1")
	}
	if c.Knowledge.TopK < 1 {
		return fmt.Errorf("knowledge.top_k must be at least 1")
	}
	if c.Knowledge.BuildConcurrency < 1 {
		return fmt.Errorf("knowledge.build_concurrency must be at least 1")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func defaultAPIKey(backend string) string {
	if backend == "azure" {
		return os.Getenv("AZURE_OPENAI_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
