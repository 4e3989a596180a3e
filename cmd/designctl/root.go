package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/transport"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app holds what every subcommand needs after flag parsing.
type app struct {
	client   *transport.Client
	personas *persona.Catalog
	logger   *slog.Logger
}

var current app

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "designctl",
	Short: "Talk to the design assistant and analyze store reviews",
	Long: `designctl runs the scenario assistant, the persona chatbot and the review
analysis workflow directly against the assistant backend.

The backend session lives for one invocation, so chatbot history is only
shared between commands run inside the same "chat" session.`,
	Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().String("backend", "", "backend base URL (default $BACKEND_URL or http://localhost:5000)")
	rootCmd.PersistentFlags().Duration("timeout", transport.DefaultTimeout, "per-request backend timeout")
	rootCmd.PersistentFlags().String("persona-file", "", "YAML persona catalog (default $PERSONA_FILE or built-in)")
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	backend, _ := cmd.Flags().GetString("backend")
	if backend == "" {
		backend = envOr("BACKEND_URL", "http://localhost:5000")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	client, err := transport.New(transport.Config{BaseURL: backend, Timeout: timeout, Logger: logger})
	if err != nil {
		return err
	}

	personaFile, _ := cmd.Flags().GetString("persona-file")
	if personaFile == "" {
		personaFile = os.Getenv("PERSONA_FILE")
	}
	personas, err := persona.LoadFile(personaFile)
	if err != nil {
		return err
	}

	current = app{client: client, personas: personas, logger: logger}
	slog.Debug("designctl ready", "backend", client.BaseURL(), "timeout", timeout)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// clock renders a message time for terminal output.
func clock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04")
}
