package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"kool/internal/config"
	"kool/internal/db"
	"kool/internal/engine"
	"kool/internal/llm"
	"kool/internal/logging"
	"kool/internal/migrate"
)

// Options controls how a workspace runtime is opened. Secrets come from the
// process environment and are never read from kool.yml.
type Options struct {
	Workspace string
	LLMAPIKey string
	JWTSecret string
	Logger    *slog.Logger
	// LLM replaces the configured OpenAI-compatible client, mainly for tests.
	LLM llm.Client
}

// Runtime is an opened workspace: migrated database, loaded config and a
// wired engine.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Open loads kool.yml (defaults when absent), opens and migrates the
// database and wires the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Logger()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		logger.Debug("applied migrations", "versions", applied)
	}
	client := opts.LLM
	if client == nil {
		client = NewLLMClient(cfg, opts.LLMAPIKey, logger)
	}
	eng := engine.New(conn, cfg, client)
	eng.Logger = logger
	eng.Auth.JWTSecret = opts.JWTSecret
	return &Runtime{
		Workspace: opts.Workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    eng,
		Logger:    logger,
	}, nil
}

// NewLLMClient builds the completion client from the llm config section.
func NewLLMClient(cfg *config.Config, apiKey string, logger *slog.Logger) llm.Client {
	return llm.NewOpenAIClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      apiKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, llm.LogObserver{Logger: logger})
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
