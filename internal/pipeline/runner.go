// Package pipeline wires the source reader, batch extractor, normalizer
// and uploader into one sequential run: jobs are processed one at a time,
// each to completion, with a fixed cooldown between them. Failure is
// contained per job; a bad source or an unparsable window degrades to
// fewer records, never to an aborted run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepgrid/question-etl/internal/common"
	"github.com/prepgrid/question-etl/internal/config"
	"github.com/prepgrid/question-etl/internal/entity"
	"github.com/prepgrid/question-etl/internal/normalize"
	"github.com/prepgrid/question-etl/internal/repository"
	"github.com/prepgrid/question-etl/internal/source"
)

// ChunkExtractor is the extractor surface the runner depends on.
// *extract.Extractor satisfies it.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, chunk source.RawChunk, job config.Job) ([]entity.Candidate, error)
}

// ReaderFactory builds the source reader for one job.
type ReaderFactory func(job config.Job, pdfTextWindow int, logger *slog.Logger) (source.Reader, error)

type Runner struct {
	cfg       common.PipelineConfig
	extractor ChunkExtractor
	questions repository.QuestionRepository
	log       *slog.Logger

	newReader ReaderFactory
	sleep     func(time.Duration)
}

func NewRunner(cfg common.PipelineConfig, extractor ChunkExtractor, questions repository.QuestionRepository, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		extractor: extractor,
		questions: questions,
		log:       logger,
		newReader: source.NewReader,
		sleep:     time.Sleep,
	}
}

// Run processes the job list sequentially and reports the run totals.
// It returns an error only when the context is cancelled; all other
// failure is contained per job and reflected in the stats.
func (r *Runner) Run(ctx context.Context, jobs []config.Job) (*Stats, error) {
	stats := &Stats{}
	deduper := normalize.NewDeduper()
	uploaded := 0

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Jobs++
		r.log.Info("processing job", "kind", job.Kind, "location", job.Location, "topic", job.Topic, "subtopic", job.Subtopic)

		if err := r.runJob(ctx, job, deduper, stats, &uploaded); err != nil {
			stats.JobsFailed++
			r.log.Error("job failed", "location", job.Location, "error", err)
		}

		if i < len(jobs)-1 {
			r.log.Info("cooling down before next job", "wait", r.cfg.JobCooldown)
			r.sleep(r.cfg.JobCooldown)
		}
	}

	r.log.Info("run complete", "stats", stats)
	return stats, nil
}

func (r *Runner) runJob(ctx context.Context, job config.Job, deduper *normalize.Deduper, stats *Stats, uploaded *int) error {
	reader, err := r.newReader(job, r.cfg.PDFTextWindow, r.log)
	if err != nil {
		return err
	}
	chunks, err := reader.Read(ctx)
	if err != nil {
		return common.WrapError(err, "read source")
	}

	for _, chunk := range chunks {
		candidates, err := r.extractor.ExtractChunk(ctx, chunk, job)
		if err != nil {
			return common.WrapError(err, "extract chunk")
		}
		stats.Extracted += len(candidates)

		var resend []*entity.Question
		for _, c := range candidates {
			q, err := normalize.Normalize(c, job)
			if err != nil {
				stats.Rejected++
				r.log.Warn("candidate rejected", "origin", chunk.Origin, "error", err)
				continue
			}
			switch res, idx := deduper.Add(q); res {
			case normalize.ReplacedWeaker:
				stats.Deduped++
				// A replacement below the watermark displaced an entry
				// that already went out; re-send it. The natural-key
				// upsert makes the second write safe.
				if idx < *uploaded {
					resend = append(resend, q)
				}
			case normalize.DroppedDuplicate:
				stats.Deduped++
			}
		}

		// Upload what this chunk contributed before moving on, so a later
		// failure cannot lose confirmed work.
		pending := append(resend, deduper.Questions()[*uploaded:]...)
		if len(pending) == 0 {
			continue
		}
		res, err := r.questions.Upload(ctx, pending, r.cfg.UploadBatchSize)
		if err != nil {
			return common.WrapError(err, "upload")
		}
		*uploaded = deduper.Len()
		stats.Created += res.Created
		stats.Updated += res.Updated
		stats.Failed += res.Failed
	}
	return nil
}
