package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/hmo-assistant/internal/dialogue"
	"github.com/tjfontaine/hmo-assistant/internal/identity"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var provider, tier, lang string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question for a known HMO and tier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := identity.Normalize(provider, tier); err != nil {
				return err
			}

			a, err := setup(flags, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.wireDialogue(); err != nil {
				return err
			}
			if err := a.watcher.Load(cmd.Context()); err != nil {
				return err
			}

			confirmed := true
			resp, err := a.orch.HandleTurn(cmd.Context(), dialogue.TurnRequest{
				Language:  lang,
				Provider:  provider,
				Tier:      tier,
				Confirmed: &confirmed,
				Message:   strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Reply)
			if showSources {
				for _, s := range resp.Sources {
					fmt.Fprintf(out, "  [%d] %s / %s (distance %.4f)\n", s.Position, s.Category, s.Service, s.Distance)
				}
			}
			if resp.Error != nil {
				return resp.Error
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "HMO (Maccabi, Meuhedet, Clalit)")
	cmd.Flags().StringVar(&tier, "tier", "", "insurance tier (Gold, Silver, Bronze)")
	cmd.Flags().StringVar(&lang, "lang", "en", "answer language (en or he)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "print the passages the answer was grounded on")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}
