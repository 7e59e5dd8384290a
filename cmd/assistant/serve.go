package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/hmo-assistant/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
}

func runServe(flags *globalFlags) error {
	a, err := setup(flags, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.wireDialogue(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Serve without an index rather than fail; /readyz reports it.
	if err := a.watcher.Load(ctx); err != nil {
		a.logger.Warn("knowledge base not loaded", slog.String("error", err.Error()))
	}
	if a.cfg.Knowledge.Watch {
		if err := a.watcher.Watch(ctx); err != nil {
			a.logger.Warn("knowledge watch disabled", slog.String("error", err.Error()))
		}
	}

	srv := server.New(a.cfg.Server.Port, a.cfg.Server.RequestTimeout, a.logger)
	server.NewHandlers(a.orch, a.store, a.logger).Mount(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	a.logger.Info("shutdown signal received, stopping server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}

	a.logger.Info("server shutdown complete")
	return nil
}
