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
	"github.com/prepgrid/question-etl/internal/normalize"
	"github.com/prepgrid/question-etl/internal/repository"
)

// Fuzzy duplicate sweep: questions whose text matches after stripping
// everything but letters and digits are collapsed to a single survivor.
func main() {
	var (
		topic  = flag.String("topic", "", "restrict the sweep to one topic (optional)")
		dryRun = flag.Bool("dry-run", false, "report duplicates without deleting")
		inmem  = flag.Bool("inmem", false, "use an in-memory SQLite database")
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

	rows, err := questions.List(ctx, *topic, "")
	if err != nil {
		logger.Error("failed to list questions", "error", err)
		os.Exit(1)
	}

	ids := normalize.PlanFuzzySweep(rows)
	logger.Info("fuzzy sweep planned", "total", len(rows), "duplicates", len(ids))

	if *dryRun {
		fmt.Printf("%d of %d questions are fuzzy duplicates (dry run, nothing deleted)\n", len(ids), len(rows))
		return
	}
	if len(ids) == 0 {
		fmt.Println("no duplicates found")
		return
	}

	deleted, err := questions.DeleteByIDs(ctx, ids, cfg.Pipeline.DeleteChunkSize)
	if err != nil {
		logger.Error("failed to delete duplicates", "error", err, "deleted", deleted)
		os.Exit(1)
	}
	fmt.Printf("deleted %d duplicate questions\n", deleted)
}
