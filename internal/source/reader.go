// Package source turns one configured job into raw text blocks (or a file
// reference for binary sources) for the extractor. Readers are leaf
// components: a read failure is fatal to the owning job only and is
// reported upward so the run can move on.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/config"
)

// RawChunk is one opaque unit of extracted source text, or a local file
// path for binary sources. Chunks are consumed exactly once and never
// persisted.
type RawChunk struct {
	// Origin is the page URL or file path the chunk came from.
	Origin string
	// Text holds extracted source text; empty for binary chunks.
	Text string
	// FilePath points at a binary source to be handed opaquely to the
	// transformation API.
	FilePath string
}

// Reader produces a finite, non-restartable sequence of chunks for one job.
type Reader interface {
	Read(ctx context.Context) ([]RawChunk, error)
}

// NewReader selects the reader implementation for the job's source kind.
func NewReader(job config.Job, pdfTextWindow int, logger *slog.Logger) (Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch constants.NormalizeKind(job.Kind) {
	case constants.SourceURL:
		return newURLReader(job, logger), nil
	case constants.SourcePDF:
		return newPDFReader(job, pdfTextWindow, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", job.Kind)
	}
}
