package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aigree/aigree/pkg/config"
	"github.com/aigree/aigree/pkg/db"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
)

// main initializes configuration, storage and the AI collaborators, then
// runs the HTTP server until interrupted.
func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	if path, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to ensure default config", "path", path, "error", err)
	}
	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	gdb, err := db.Open(cfg.DatabasePath())
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.DatabasePath(), "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ai, err := buildCollaborators(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize AI collaborators", "provider", cfg.Provider(), "error", err)
		os.Exit(1)
	}

	server := NewServer(cfg, gdb, ai)
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("aigree started", "provider", cfg.Provider(), "config", cfgPath)

	<-ctx.Done()
	logger.Info("Shutting down")
}

// buildCollaborators selects the AI backend per config. The mock provider
// serves development and demos without any external model.
func buildCollaborators(ctx context.Context, cfg *config.AppConfig) (collaborators, error) {
	if cfg.Provider() == "mock" {
		mock := service.NewMockAI()
		return collaborators{
			Extractor:   mock,
			Generator:   mock,
			Comparator:  mock,
			Drafter:     mock,
			Responder:   mock,
			Analyzer:    mock,
			Transcriber: service.NewMockTranscriber(),
		}, nil
	}

	ai, err := service.NewAIService(ctx, cfg)
	if err != nil {
		return collaborators{}, err
	}
	return collaborators{
		Extractor:  ai,
		Generator:  ai,
		Comparator: ai,
		Drafter:    ai,
		Responder:  ai,
		Analyzer:   ai,
		// No streaming STT backend is wired yet; the mock transcriber
		// answers until one is.
		Transcriber: service.NewMockTranscriber(),
	}, nil
}
