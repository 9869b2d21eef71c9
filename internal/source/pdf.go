package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/config"
)

type pdfReader struct {
	job        config.Job
	textWindow int
	log        *slog.Logger
}

func newPDFReader(job config.Job, textWindow int, logger *slog.Logger) *pdfReader {
	if textWindow <= 0 {
		textWindow = 12000
	}
	return &pdfReader{job: job, textWindow: textWindow, log: logger}
}

// Read produces either a single opaque file chunk (binary mode, the
// transformation API reads the PDF itself) or fixed-size character windows
// of locally extracted text (text mode).
func (r *pdfReader) Read(ctx context.Context) ([]RawChunk, error) {
	if _, err := os.Stat(r.job.Location); err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	if r.job.Mode() == constants.PDFModeBinary {
		r.log.Info("pdf source read", "path", r.job.Location, "mode", "binary")
		return []RawChunk{{Origin: r.job.Location, FilePath: r.job.Location}}, nil
	}

	text, pages, err := extractPDFText(r.job.Location)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	var chunks []RawChunk
	for _, window := range windowText(text, r.textWindow) {
		chunks = append(chunks, RawChunk{Origin: r.job.Location, Text: window})
	}
	r.log.Info("pdf source read", "path", r.job.Location, "mode", "text", "pages", pages, "windows", len(chunks))
	return chunks, nil
}

// windowText splits text into windows of at most size bytes, never cutting
// inside a multibyte UTF-8 sequence.
func windowText(text string, size int) []string {
	var windows []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			windows = append(windows, text[start:])
			break
		}
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			end = start + size
		}
		windows = append(windows, text[start:end])
		start = end
	}
	return windows
}

// extractPDFText concatenates the plain text of every page.
func extractPDFText(path string) (string, int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read pdf: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	var buf bytes.Buffer
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	return buf.String(), numPages, nil
}
