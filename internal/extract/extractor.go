// Package extract implements the batch extractor: it partitions a job's
// item range into fixed-size windows, asks the transformation API to turn
// each window of raw source content into structured question objects, and
// converts the parsed objects into candidates for the normalizer.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prepgrid/question-etl/internal/config"
	"github.com/prepgrid/question-etl/internal/entity"
	"github.com/prepgrid/question-etl/internal/genai"
	"github.com/prepgrid/question-etl/internal/retry"
	"github.com/prepgrid/question-etl/internal/source"
)

// Generator is the slice of the transformation API the extractor depends on.
// *genai.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, file *genai.FileRef) (string, error)
	UploadFile(ctx context.Context, path, mimeType string) (*genai.FileRef, error)
}

// Config tunes windowing, retries and the steady-state cooldown.
type Config struct {
	// WindowSize is how many logical items one API call requests.
	WindowSize int
	// Cooldown is slept after every API call, success or not, to stay
	// under the steady-state rate limit.
	Cooldown time.Duration
	Retry    retry.Policy

	// Sleep is swappable so tests do not block; nil means time.Sleep.
	Sleep func(time.Duration)
}

type Extractor struct {
	gen    Generator
	cfg    Config
	log    *slog.Logger
	schema map[string]any

	// fileCache reuses one uploaded handle per PDF across jobs in a run.
	fileCache map[string]*genai.FileRef
}

func New(gen Generator, cfg Config, logger *slog.Logger) *Extractor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		gen:       gen,
		cfg:       cfg,
		log:       logger,
		schema:    genai.BuildQuestionJSONSchema(),
		fileCache: make(map[string]*genai.FileRef),
	}
}

// ExtractChunk requests transformation of one raw chunk, window by window,
// and returns the candidates of every window that produced parseable
// output. An unparsable or repeatedly failing window degrades to zero
// records; only a file-upload failure is an error, since without the
// handle no window of a binary chunk can proceed.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk source.RawChunk, job config.Job) ([]entity.Candidate, error) {
	var file *genai.FileRef
	if chunk.FilePath != "" {
		var err error
		if file, err = e.uploadCached(ctx, chunk.FilePath); err != nil {
			return nil, err
		}
	}

	var candidates []entity.Candidate
	for _, w := range windows(job.ItemRange, e.cfg.WindowSize) {
		prompt := buildPrompt(chunk.Text, w)

		var response string
		err := e.cfg.Retry.Do(ctx, "extract window", func() error {
			var genErr error
			response, genErr = e.gen.Generate(ctx, prompt, file)
			// Deliberate cooldown after every call, regardless of outcome.
			e.cfg.Sleep(e.cfg.Cooldown)
			return genErr
		})
		if err != nil {
			// Exhausted retries degrade to zero records for this window.
			e.log.Warn("window gave up", "origin", chunk.Origin, "window_start", w.Start, "window_end", w.End, "error", err)
			continue
		}

		parsed := e.parseWindow(response, chunk.Origin)
		e.log.Info("window extracted",
			"origin", chunk.Origin,
			"window_start", w.Start,
			"window_end", w.End,
			"records", len(parsed),
		)
		candidates = append(candidates, parsed...)
	}
	return candidates, nil
}

// parseWindow locates the structured list in the response and decodes each
// element that passes the question schema. A response with no salvageable
// list is zero records, not fatal.
func (e *Extractor) parseWindow(response, origin string) []entity.Candidate {
	items, err := genai.ExtractJSONList(response)
	if err != nil {
		e.log.Warn("response not parseable", "origin", origin, "error", err, "snippet", snippet(response))
		return nil
	}

	var out []entity.Candidate
	for i, item := range items {
		if err := genai.ValidateJSONAgainstSchema(e.schema, item); err != nil {
			e.log.Warn("item rejected by schema", "origin", origin, "index", i, "error", err)
			continue
		}
		var c entity.Candidate
		if err := json.Unmarshal(item, &c); err != nil {
			e.log.Warn("item not decodable", "origin", origin, "index", i, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Extractor) uploadCached(ctx context.Context, path string) (*genai.FileRef, error) {
	if ref, ok := e.fileCache[path]; ok {
		e.log.Info("using cached file upload", "path", path, "name", ref.Name)
		return ref, nil
	}
	ref, err := e.gen.UploadFile(ctx, path, "application/pdf")
	if err != nil {
		return nil, err
	}
	e.fileCache[path] = ref
	return ref, nil
}

// windows partitions the job's 1-based inclusive item range into
// fixed-size windows. A nil range yields a single unbounded window.
func windows(r *config.ItemRange, size int) []config.ItemRange {
	if r == nil {
		return []config.ItemRange{{}}
	}
	var out []config.ItemRange
	for start := r.Start; start <= r.End; start += size {
		end := start + size - 1
		if end > r.End {
			end = r.End
		}
		out = append(out, config.ItemRange{Start: start, End: end})
	}
	return out
}

func snippet(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
