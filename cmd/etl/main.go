package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prepgrid/question-etl/internal/common"
	"github.com/prepgrid/question-etl/internal/config"
	"github.com/prepgrid/question-etl/internal/extract"
	"github.com/prepgrid/question-etl/internal/genai"
	"github.com/prepgrid/question-etl/internal/pipeline"
	"github.com/prepgrid/question-etl/internal/repository"
	"github.com/prepgrid/question-etl/internal/retry"
)

func main() {
	var (
		jobsPath = flag.String("jobs", "jobs.yaml", "path to the YAML job manifest")
		inmem    = flag.Bool("inmem", false, "use an in-memory SQLite database")
	)
	flag.Parse()

	// Structured logger that outputs messages with variables but no time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	jobs, err := config.LoadJobs(*jobsPath)
	if err != nil {
		logger.Error("failed to load job manifest", "error", err, "path", *jobsPath)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		logger.Error("job manifest is empty", "path", *jobsPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
		InMemory:        *inmem,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if *inmem {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			logger.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
	}

	progress := repository.NewProgressRepository(db, logger)
	questions := repository.NewQuestionRepository(db, progress, logger)

	client := genai.NewClient(genai.Config{
		APIKey:        cfg.GenAI.APIKey,
		BaseURL:       cfg.GenAI.BaseURL,
		Models:        cfg.GenAI.Models,
		Timeout:       cfg.GenAI.Timeout,
		FilePollDelay: cfg.GenAI.FilePollDelay,
		FilePollMax:   cfg.GenAI.FilePollMax,
	}, logger)

	extractor := extract.New(client, extract.Config{
		WindowSize: cfg.Pipeline.WindowSize,
		Cooldown:   cfg.Pipeline.WindowCooldown,
		Retry: retry.Policy{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			BaseDelay:      cfg.Pipeline.RetryBaseDelay,
			TransientDelay: cfg.Pipeline.TransientDelay,
			Logger:         logger,
		},
	}, logger)

	runner := pipeline.NewRunner(cfg.Pipeline, extractor, questions, logger)

	stats, err := runner.Run(ctx, jobs)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pipeline run complete", "stats", stats)
	fmt.Printf("jobs: %d ok, %d failed\n", stats.Jobs-stats.JobsFailed, stats.JobsFailed)
	fmt.Printf("questions: %d extracted, %d rejected, %d deduped\n", stats.Extracted, stats.Rejected, stats.Deduped)
	fmt.Printf("store: %d created, %d updated, %d failed\n", stats.Created, stats.Updated, stats.Failed)
}
