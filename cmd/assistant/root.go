package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/hmo-assistant/internal/dialogue"
	"github.com/tjfontaine/hmo-assistant/internal/knowledge"
	"github.com/tjfontaine/hmo-assistant/internal/llm"
	"github.com/tjfontaine/hmo-assistant/internal/llm/registry"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
	"github.com/tjfontaine/hmo-assistant/internal/registration"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
	"github.com/tjfontaine/hmo-assistant/internal/slots"
	"github.com/tjfontaine/hmo-assistant/internal/synth"
	"github.com/tjfontaine/hmo-assistant/internal/telemetry"
	"github.com/tjfontaine/hmo-assistant/internal/tokens"
)

type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "assistant",
		Short:        "Bilingual HMO benefits assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to the config file")

	root.AddCommand(
		newServeCmd(flags),
		newIndexCmd(flags),
		newChatCmd(flags),
		newAskCmd(flags),
	)
	return root
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app holds the components every subcommand shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend llm.Backend
	store   *retrieval.Store
	watcher *knowledge.Watcher
	orch    *dialogue.Orchestrator
	closers []func(context.Context) error
}

// setup loads config and wires the LLM backend. logOut receives logs; CLI
// commands send them to stderr so stdout stays readable.
func setup(flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Writer:      os.Stderr,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	registration.RegisterBuiltins()
	backend, err := registry.CreateFromConfig(cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	logger.Debug("llm backend ready",
		slog.String("type", backend.Name()),
		slog.String("chat_model", cfg.LLM.ChatModel),
		slog.String("embedding_model", cfg.LLM.EmbeddingModel),
	)
	return a, nil
}

// wireDialogue builds the orchestrator over a store the watcher fills.
func (a *app) wireDialogue() error {
	policy, err := slots.ParseRestartPolicy(a.cfg.Dialogue.RestartPolicy)
	if err != nil {
		return err
	}

	a.store = retrieval.NewStore()
	a.watcher = knowledge.NewWatcher(a.cfg.Knowledge.Path, a.store, a.logger)

	machine := slots.NewMachine(a.backend, slots.Config{
		Temperature:   a.cfg.LLM.DialogueTemperature,
		MaxToolRounds: a.cfg.Dialogue.MaxToolRounds,
		RestartPolicy: policy,
	}, a.logger)
	retriever := retrieval.NewRetriever(a.store, a.backend, a.cfg.Knowledge.TopK, a.logger)
	translator := llm.NewCompletionTranslator(a.backend, a.cfg.LLM.TranslationTemperature)
	answerer := synth.New(a.backend, a.cfg.LLM.AnswerTemperature,
		synth.WithTokenCounter(tokens.NewCounter(), a.cfg.LLM.ChatModel),
		synth.WithLogger(a.logger),
	)

	a.orch = dialogue.New(machine, retriever, translator, answerer, a.logger)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Close()
	}
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			a.logger.Error("shutdown error", slog.String("error", err.Error()))
		}
	}
}
