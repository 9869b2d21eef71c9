package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/prepgrid/question-etl/internal/repository"
)

// Service is a tiny façade over the question repository that produces XLSX
// bytes for exports.
type Service struct {
	questions repository.QuestionRepository
	logger    *slog.Logger
}

func NewService(questions repository.QuestionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{questions: questions, logger: logger}
}

// ExportQuestionsXLSX returns an XLSX workbook (as bytes) for the bank,
// optionally filtered by topic and/or subtopic.
func (s *Service) ExportQuestionsXLSX(ctx context.Context, topic, subtopic string) ([]byte, error) {
	start := time.Now()

	recs, err := s.questions.List(ctx, topic, subtopic)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Questions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Topic",
		"Subtopic",
		"Difficulty",
		"Question",
		"Options",
		"Correct Answer",
		"Explanation",
		"Created At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, q := range recs {
		opts := make([]string, len(q.Choices))
		for i, c := range q.Choices {
			opts[i] = c.Label + ". " + c.Text
		}

		values := []any{
			q.Topic,
			q.Subtopic,
			string(q.Difficulty),
			q.Text,
			strings.Join(opts, "\n"),
			q.CorrectLabel,
			q.Explanation,
			q.CreatedAt.UTC().Format(time.RFC3339),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export complete",
		"rows", row-2,
		"topic", topic,
		"subtopic", subtopic,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
