package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/hmo-assistant/internal/knowledge"
	"github.com/tjfontaine/hmo-assistant/internal/pkg/config"
	"github.com/tjfontaine/hmo-assistant/internal/tokens"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect the knowledge base",
	}
	cmd.AddCommand(newIndexBuildCmd(flags), newIndexStatsCmd(flags))
	return cmd
}

func newIndexBuildCmd(flags *globalFlags) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed chunk records and write the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags, os.Stderr)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.close(context.Background())

			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()

			chunks, err := knowledge.ReadChunks(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			if output == "" {
				output = a.cfg.Knowledge.Path
			}
			b := knowledge.NewBuilder(a.backend, tokens.NewCounter(), knowledge.BuilderConfig{
				EmbeddingModel: a.cfg.LLM.EmbeddingModel,
				MaxInputTokens: a.cfg.Knowledge.MaxInputTokens,
				Concurrency:    a.cfg.Knowledge.BuildConcurrency,
			}, a.logger)

			meta, err := b.Build(ctx, chunks, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chunks to %s (build %s)\n", len(chunks), output, meta.BuildID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON file of chunk records")
	cmd.Flags().StringVar(&output, "output", "", "knowledge base path (default knowledge.path)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newIndexStatsCmd(flags *globalFlags) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print chunk count, dimension and tag coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stats needs no LLM backend, only the knowledge path.
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if path == "" {
				path = cfg.Knowledge.Path
			}

			ix, err := knowledge.Load(cmd.Context(), path)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(knowledge.Summarize(ix))
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "knowledge base path (default knowledge.path)")
	return cmd
}
