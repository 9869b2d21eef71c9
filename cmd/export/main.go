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
	"github.com/prepgrid/question-etl/internal/export"
	"github.com/prepgrid/question-etl/internal/repository"
)

func main() {
	var (
		topic    = flag.String("topic", "", "restrict the export to one topic (optional)")
		subtopic = flag.String("subtopic", "", "restrict the export to one subtopic (optional)")
		out      = flag.String("out", "questions.xlsx", "output XLSX file path")
		inmem    = flag.Bool("inmem", false, "use an in-memory SQLite database")
	)
	flag.Parse()

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
	if cfg.Database.DSN == "" && !*inmem {
		logger.Error("missing DB_URL environment variable")
		os.Exit(2)
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
	svc := export.NewService(questions, logger)

	data, err := svc.ExportQuestionsXLSX(ctx, *topic, *subtopic)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err, "path", *out)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
