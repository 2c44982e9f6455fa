package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studysync/internal/app"
	"github.com/conorfennell/studysync/internal/config"
	"github.com/conorfennell/studysync/internal/logging"
)

var (
	application *app.App
	logCloser   io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "studysync",
	Short: "Offline-first client for the study service",
	Long: `studysync keeps decks, flashcards and quizzes in a local SQLite cache,
records study events while offline and delivers them when the network returns.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// setup loads configuration, builds the logger and opens the app. The
// network state is probed once so one-shot commands know whether to refresh.
func setup(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(logger)

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	application = a

	if err := a.Probe(cmd.Context()); err != nil {
		logger.Warn("Failed to probe network", "error", err)
	}
	return nil
}

func teardown() {
	if application != nil {
		if err := application.Close(); err != nil {
			slog.Error("Failed to close app", "error", err)
		}
	}
	if logCloser != nil {
		logCloser.Close()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
