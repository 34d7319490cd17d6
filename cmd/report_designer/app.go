package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/config"
	"github.com/alexwday/report-designer/internal/db"
	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/llm"
	"github.com/alexwday/report-designer/internal/logging"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/retrieval"
	"github.com/alexwday/report-designer/internal/schema"
)

// loadConfig builds the effective configuration: config file, then flags,
// then environment, then built-in defaults
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	cfg = cfg.MergeWithDefaults(config.FromEnv())
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger logs at debug in verbose mode, otherwise at the configured level
func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Verbose {
		return logging.New("debug", true)
	}
	return logging.New(cfg.LogLevel, false)
}

// app holds the collaborators a generation command needs
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	db      *db.DB
	catalog *schema.Catalog
	llm     llm.Client
	manager *generation.Manager
}

// appOptions selects which collaborators to open
type appOptions struct {
	// generation opens the LLM client; without it the manager can only check requirements
	generation bool
	onProgress generation.ProgressCallback
}

func openApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	catalog, err := schema.LoadFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	a.catalog = catalog
	logger.Debug("registry loaded", zap.String("path", cfg.RegistryPath), zap.Int("sources", len(catalog.SourceIDs())))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or database_url config is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = database
	if err := database.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var generator generation.Generator
	if opts.generation {
		if cfg.APIKey == "" {
			a.Close()
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable or api_key config is required")
		}
		client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.llm = client
		generator = generation.NewContentGenerator(client)
	}

	a.manager = generation.NewManager(generation.ManagerConfig{
		Store:      database,
		Registry:   catalog,
		Retriever:  retrieval.NewClient(catalog, &retrieval.Options{Timeout: cfg.RetrievalTimeout()}),
		Generator:  generator,
		Aliases:    precheck.Aliases(cfg.VariableAliases),
		Logger:     logger,
		OnProgress: opts.onProgress,
	})
	return a, nil
}

// Close releases everything openApp opened
func (a *app) Close() {
	if a.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.manager.Shutdown(ctx); err != nil {
			a.logger.Warn("generation runs did not stop cleanly", zap.Error(err))
		}
		cancel()
	}
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			a.logger.Warn("failed to close LLM client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
