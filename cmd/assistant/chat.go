package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/hmo-assistant/internal/dialogue"
	"github.com/tjfontaine/hmo-assistant/internal/domain"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseLanguage(lang); err != nil {
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
				a.logger.Warn("knowledge base not loaded, questions will fail", slog.String("error", err.Error()))
			}

			return chat(cmd.Context(), a.orch, lang, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "en", "conversation language (en or he)")
	return cmd
}

type turnHandler interface {
	HandleTurn(ctx context.Context, req dialogue.TurnRequest) (*dialogue.TurnResponse, error)
}

// chat runs the read-reply loop until EOF or "exit". The first turn is sent
// empty so the assistant opens the conversation.
func chat(ctx context.Context, turns turnHandler, lang string, in io.Reader, out io.Writer) error {
	req := dialogue.TurnRequest{Language: lang}
	scanner := bufio.NewScanner(in)

	for {
		resp, err := turns.HandleTurn(ctx, req)
		switch {
		case err == nil:
			fmt.Fprintf(out, "assistant> %s\n", resp.Reply)
			req.Provider = string(resp.Provider)
			req.Tier = string(resp.Tier)
			req.Confirmed = resp.Confirmed
			req.History = resp.History
		case errors.Is(err, context.Canceled):
			return nil
		default:
			// The turn was not committed; the user may retry.
			fmt.Fprintf(out, "error> %v\n", err)
		}

		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}
		req.Message = line
	}
}
