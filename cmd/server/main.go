// designdesk - game design assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/designdesk/designdesk/internal/api"
	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/config"
	"github.com/designdesk/designdesk/internal/hub"
	"github.com/designdesk/designdesk/internal/persona"
	"github.com/designdesk/designdesk/internal/store"
	"github.com/designdesk/designdesk/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Backend.URL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	personas, err := persona.LoadFile(cfg.PersonaFile)
	if err != nil {
		slog.Error("Failed to load persona catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Persona catalog loaded", "count", len(personas.All()), "fallback", personas.Fallback().Key)

	client, err := transport.New(transport.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to initialize backend client", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	workspaces, err := hub.New(hub.Config{
		Pool:              transport.NewPool(client),
		Repo:              repo,
		Personas:          personas,
		ConvLog:           conversationLogger,
		Logger:            logger,
		WorkspaceTTL:      cfg.WorkspaceTTL,
		DeviceTTL:         cfg.DeviceTTL,
		AnalysisRetention: cfg.AnalysisRetention,
	})
	if err != nil {
		slog.Error("Failed to initialize workspace hub", "error", err)
		os.Exit(1)
	}
	defer workspaces.Close()

	router := api.NewRouter(api.RouterDeps{
		Hub:      workspaces,
		Repo:     repo,
		Personas: personas,
		Config:   cfg,
	})

	// Analyses can run for minutes, so responses have no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workspaces.StartTTLWorker(ctx, 0)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close workspaces first so open state streams end and in-flight calls
	// are canceled.
	workspaces.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
