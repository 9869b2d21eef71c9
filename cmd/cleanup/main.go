package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/common"
	"github.com/prepgrid/question-etl/internal/entity"
	"github.com/prepgrid/question-etl/internal/repository"
)

// Maintenance chores against the question store: cascading topic deletes,
// difficulty relabeling, and a read-only duplicate census.
func main() {
	var (
		deleteTopic = flag.String("delete-topic", "", "delete every question under this topic (cascades to progress rows)")
		renameFrom  = flag.String("rename-from", "", "difficulty label to rewrite")
		renameTo    = flag.String("rename-to", "", "canonical difficulty to rewrite it to (Easy, Medium, Hard)")
		countDupes  = flag.Bool("count-duplicates", false, "report exact and fuzzy duplicate counts without changing anything")
		inmem       = flag.Bool("inmem", false, "use an in-memory SQLite database")
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

	if *deleteTopic == "" && *renameFrom == "" && !*countDupes {
		fmt.Fprintln(os.Stderr, "nothing to do: pass --delete-topic, --rename-from/--rename-to, or --count-duplicates")
		flag.Usage()
		os.Exit(2)
	}
	if (*renameFrom == "") != (*renameTo == "") {
		fmt.Fprintln(os.Stderr, "--rename-from and --rename-to must be given together")
		os.Exit(2)
	}

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

	if *renameFrom != "" {
		to, ok := constants.CanonicalizeDifficulty(*renameTo)
		if !ok {
			logger.Error("unrecognized target difficulty", "rename_to", *renameTo)
			os.Exit(2)
		}
		n, err := questions.RenameDifficulty(ctx, *renameFrom, to)
		if err != nil {
			logger.Error("failed to rename difficulty", "error", err)
			os.Exit(1)
		}
		fmt.Printf("relabeled %d questions from %q to %q\n", n, *renameFrom, to)
	}

	if *deleteTopic != "" {
		n, err := questions.DeleteByTopic(ctx, *deleteTopic, cfg.Pipeline.DeleteChunkSize)
		if err != nil {
			logger.Error("failed to delete topic", "error", err, "topic", *deleteTopic)
			os.Exit(1)
		}
		fmt.Printf("deleted %d questions under topic %q\n", n, *deleteTopic)
	}

	if *countDupes {
		rows, err := questions.List(ctx, "", "")
		if err != nil {
			logger.Error("failed to list questions", "error", err)
			os.Exit(1)
		}
		exact := make(map[string]int)
		fuzzy := make(map[string]int)
		for _, q := range rows {
			exact[q.NaturalKey()]++
			fuzzy[entity.FuzzyKey(q.Text)]++
		}
		exactDupes, fuzzyDupes := 0, 0
		for _, n := range exact {
			exactDupes += n - 1
		}
		for _, n := range fuzzy {
			fuzzyDupes += n - 1
		}
		fmt.Printf("%d questions total: %d exact duplicates, %d fuzzy duplicates\n", len(rows), exactDupes, fuzzyDupes)
	}
}
