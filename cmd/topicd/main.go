package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/danfors/topicd/analysis"
	anthropicanalysis "github.com/danfors/topicd/analysis/anthropic"
	ollamaanalysis "github.com/danfors/topicd/analysis/ollama"
	openaianalysis "github.com/danfors/topicd/analysis/openai"
	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/extraction"
	topicdlogger "github.com/danfors/topicd/logger"
	"github.com/danfors/topicd/memory"
	"github.com/danfors/topicd/migrations"
	"github.com/danfors/topicd/server"
	"github.com/danfors/topicd/status"
	"github.com/danfors/topicd/summary"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr    = flag.String("addr", "", "HTTP listen address (overrides config)")
		logFile = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty  = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		dbPath  = flag.String("db", "topicd.db", "Path to SQLite database file")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	logger, err := topicdlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info().
		Str("db", *dbPath).
		Msg("topicd starting")

	configPath := config.GetServerConfigPath()
	appConfig, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}
	if *addr != "" {
		appConfig.Server.Addr = *addr
	}
	logger.Info().
		Int("topic_sets", len(appConfig.TopicSets)).
		Msg("Loaded server configuration")

	// ---------------------------
	// 1. Open SQLite + stores
	// ---------------------------

	logger.Info().Str("path", *dbPath).Msg("Initializing database")
	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, "./migrations", logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	memoryStore, err := memory.NewStore(db, logger)
	if err != nil {
		return fmt.Errorf("failed to create memory store: %w", err)
	}
	conversationStore := conversations.NewStore(db)

	// ---------------------------
	// 2. Analysis collaborator
	// ---------------------------

	analyzer, profiles, err := buildAnalyzer(appConfig, logger)
	if err != nil {
		return err
	}

	// ---------------------------
	// 3. Status channel + pipeline
	// ---------------------------

	broker := status.NewBroker(logger)
	publisher := status.NewPublisher(broker)

	var generator summary.Generator
	if apiKey, model := config.LoadAnthropicConfig(appConfig); apiKey != "" {
		generator = summary.NewAnthropicGenerator(model, apiKey, 2048, logger)
	} else {
		logger.Warn().Msg("No Anthropic API key, summaries will be stored without a narrative")
	}
	summaryJob := summary.NewJob(memoryStore, generator, publisher, appConfig.TopicSets, logger)

	monitor := extraction.NewMonitor(memoryStore, summaryJob, logger)
	engine := extraction.NewEngine(memoryStore, analyzer, profiles, monitor, publisher, appConfig.Extraction, logger)

	// ---------------------------
	// 4. Retention job
	// ---------------------------

	scheduler := cron.New()
	if !appConfig.Retention.Disabled {
		maxAge, err := time.ParseDuration(appConfig.Retention.MaxAge)
		if err != nil {
			return fmt.Errorf("invalid retention.max_age %q: %w", appConfig.Retention.MaxAge, err)
		}
		_, err = scheduler.AddFunc(appConfig.Retention.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			deleted, err := conversationStore.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
			if err != nil {
				logger.Error().Err(err).Msg("Retention prune failed")
				return
			}
			logger.Info().Int64("deleted", deleted).Msg("Pruned old conversation turns")
		})
		if err != nil {
			return fmt.Errorf("invalid retention.schedule %q: %w", appConfig.Retention.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info().
			Str("schedule", appConfig.Retention.Schedule).
			Str("max_age", appConfig.Retention.MaxAge).
			Msg("Retention job scheduled")
	}

	// ---------------------------
	// 5. HTTP server
	// ---------------------------

	srv := server.New(appConfig, db, memoryStore, conversationStore, engine, broker, publisher, nil, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("topicd stopped")
	return nil
}

// buildAnalyzer picks the first configured provider in preference order.
func buildAnalyzer(cfg *config.ServerConfig, logger zerolog.Logger) (analysis.Analyzer, analysis.ProfileExtractor, error) {
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = []string{"openai"}
	}

	for _, provider := range providers {
		switch provider {
		case "openai":
			apiKey, baseURL, model, org := config.LoadOpenAIConfig(cfg)
			if apiKey == "" {
				continue
			}
			client, err := openaianalysis.NewClient(apiKey, baseURL, model, org)
			if err != nil {
				return nil, nil, fmt.Errorf("openai analysis client: %w", err)
			}
			logger.Info().Str("provider", "openai").Str("model", model).Msg("Analysis provider ready")
			return client, client, nil

		case "anthropic":
			apiKey, model := config.LoadAnthropicConfig(cfg)
			if apiKey == "" {
				continue
			}
			client, err := anthropicanalysis.NewClient(apiKey, model, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("anthropic analysis client: %w", err)
			}
			logger.Info().Str("provider", "anthropic").Str("model", model).Msg("Analysis provider ready")
			return client, client, nil

		case "ollama":
			host, model := config.LoadOllamaConfig(cfg)
			client, err := ollamaanalysis.NewClient(host, model)
			if err != nil {
				return nil, nil, fmt.Errorf("ollama analysis client: %w", err)
			}
			logger.Info().Str("provider", "ollama").Str("model", model).Msg("Analysis provider ready")
			return client, client, nil

		default:
			logger.Warn().Str("provider", provider).Msg("Unknown provider, skipping")
		}
	}
	return nil, nil, fmt.Errorf("no analysis provider configured (providers: %v)", providers)
}
