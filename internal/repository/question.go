package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/entity"
	"github.com/prepgrid/question-etl/internal/normalize"
)

// UploadResult summarizes one upload pass over a record sequence.
type UploadResult struct {
	Created int
	Updated int
	Failed  int
}

type QuestionRepository interface {
	// Upload persists records in bounded batches, turning inserts into
	// updates when the natural key already exists.
	Upload(ctx context.Context, questions []*entity.Question, batchSize int) (UploadResult, error)
	List(ctx context.Context, topic, subtopic string) ([]*entity.Question, error)
	Count(ctx context.Context, topic string) (int, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID, chunkSize int) (int, error)
	DeleteByTopic(ctx context.Context, topic string, chunkSize int) (int, error)
	RenameDifficulty(ctx context.Context, from string, to constants.Difficulty) (int64, error)
}

type questionRepository struct {
	db       *sqlx.DB
	progress ProgressRepository
	logger   *slog.Logger
}

func NewQuestionRepository(db *sqlx.DB, progress ProgressRepository, logger *slog.Logger) QuestionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &questionRepository{db: db, progress: progress, logger: logger}
}

func (r *questionRepository) Upload(ctx context.Context, questions []*entity.Question, batchSize int) (UploadResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var result UploadResult
	for start := 0; start < len(questions); start += batchSize {
		end := start + batchSize
		if end > len(questions) {
			end = len(questions)
		}
		r.uploadBatch(ctx, questions[start:end], &result)
	}

	r.logger.Info("upload complete",
		"records", len(questions),
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result, nil
}

// uploadBatch splits one batch into inserts and natural-key updates, then
// writes the inserts as a single multi-row statement. A failing batch
// insert falls back to single-record inserts so one bad record cannot
// lose the rest of the batch.
func (r *questionRepository) uploadBatch(ctx context.Context, batch []*entity.Question, result *UploadResult) {
	var toInsert []*entity.Question
	for _, q := range batch {
		existingID, err := r.findByNaturalKey(ctx, q)
		if err != nil {
			r.logger.Error("natural key lookup failed", "text_len", len(q.Text), "error", err)
			result.Failed++
			continue
		}
		if existingID != uuid.Nil {
			if err := r.updateDifficulty(ctx, existingID, q.Difficulty); err != nil {
				r.logger.Error("duplicate update failed", "id", existingID, "error", err)
				result.Failed++
				continue
			}
			r.logger.Info("duplicate found, updated difficulty", "id", existingID, "subtopic", q.Subtopic, "difficulty", q.Difficulty)
			result.Updated++
			continue
		}
		toInsert = append(toInsert, q)
	}

	if len(toInsert) == 0 {
		return
	}
	if err := r.insertMany(ctx, toInsert); err == nil {
		result.Created += len(toInsert)
		return
	} else {
		r.logger.Warn("batch insert failed, retrying record by record", "batch_size", len(toInsert), "error", err)
	}

	for _, q := range toInsert {
		if err := r.insertMany(ctx, []*entity.Question{q}); err != nil {
			r.logger.Error("record insert failed", "subtopic", q.Subtopic, "text_len", len(q.Text), "error", err)
			result.Failed++
			continue
		}
		result.Created++
	}
}

func (r *questionRepository) findByNaturalKey(ctx context.Context, q *entity.Question) (uuid.UUID, error) {
	query := r.db.Rebind(`SELECT id FROM questions WHERE question_text = ? AND subtopic = ?`)
	var id string
	err := r.db.GetContext(ctx, &id, query, strings.TrimSpace(q.Text), q.Subtopic)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(id)
}

func (r *questionRepository) updateDifficulty(ctx context.Context, id uuid.UUID, d constants.Difficulty) error {
	query := r.db.Rebind(`UPDATE questions SET difficulty = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query, string(d), id.String())
	return err
}

func (r *questionRepository) insertMany(ctx context.Context, qs []*entity.Question) error {
	const cols = 9
	placeholders := make([]string, 0, len(qs))
	args := make([]any, 0, len(qs)*cols)
	now := time.Now().UTC()

	for _, q := range qs {
		opts, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("marshal choices: %w", err)
		}
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			uuid.New().String(),
			strings.TrimSpace(q.Text),
			string(opts),
			q.CorrectLabel,
			q.Explanation,
			string(q.Difficulty),
			q.Topic,
			q.Subtopic,
			now,
		)
	}

	query := r.db.Rebind(`INSERT INTO questions
		(id, question_text, options, correct_answer, explanation, difficulty, topic, subtopic, created_at)
		VALUES ` + strings.Join(placeholders, ", "))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

type questionRow struct {
	ID            string    `db:"id"`
	QuestionText  string    `db:"question_text"`
	Options       string    `db:"options"`
	CorrectAnswer string    `db:"correct_answer"`
	Explanation   string    `db:"explanation"`
	Difficulty    string    `db:"difficulty"`
	Topic         string    `db:"topic"`
	Subtopic      string    `db:"subtopic"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *questionRepository) List(ctx context.Context, topic, subtopic string) ([]*entity.Question, error) {
	query := `SELECT id, question_text, options, correct_answer, explanation, difficulty, topic, subtopic, created_at FROM questions`
	var clauses []string
	var args []any
	if topic != "" {
		clauses = append(clauses, "topic = ?")
		args = append(args, topic)
	}
	if subtopic != "" {
		clauses = append(clauses, "subtopic = ?")
		args = append(args, subtopic)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	var rows []questionRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("failed to list questions", "topic", topic, "subtopic", subtopic, "error", err)
		return nil, err
	}

	out := make([]*entity.Question, 0, len(rows))
	for _, row := range rows {
		q, err := toQuestion(row)
		if err != nil {
			r.logger.Warn("skipping unreadable row", "id", row.ID, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *questionRepository) Count(ctx context.Context, topic string) (int, error) {
	query := `SELECT COUNT(*) FROM questions`
	var args []any
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteByIDs removes questions in bounded chunks, clearing dependent
// user_progress rows first so no orphaned references remain.
func (r *questionRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 100
	}

	deleted := 0
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if _, err := r.progress.DeleteByQuestionIDs(ctx, chunk); err != nil {
			return deleted, fmt.Errorf("delete progress chunk: %w", err)
		}

		query, args, err := sqlx.In(`DELETE FROM questions WHERE id IN (?)`, idStrings(chunk))
		if err != nil {
			return deleted, err
		}
		res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
		if err != nil {
			return deleted, fmt.Errorf("delete questions chunk: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
		r.logger.Info("deleted question chunk", "chunk", len(chunk), "total", deleted)
	}
	return deleted, nil
}

func (r *questionRepository) DeleteByTopic(ctx context.Context, topic string, chunkSize int) (int, error) {
	var ids []string
	query := r.db.Rebind(`SELECT id FROM questions WHERE topic = ?`)
	if err := r.db.SelectContext(ctx, &ids, query, topic); err != nil {
		return 0, err
	}

	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return 0, fmt.Errorf("parse id %q: %w", id, err)
		}
		parsed = append(parsed, u)
	}
	return r.DeleteByIDs(ctx, parsed, chunkSize)
}

// RenameDifficulty rewrites stored rows carrying a loose difficulty label.
func (r *questionRepository) RenameDifficulty(ctx context.Context, from string, to constants.Difficulty) (int64, error) {
	query := r.db.Rebind(`UPDATE questions SET difficulty = ? WHERE difficulty = ?`)
	res, err := r.db.ExecContext(ctx, query, string(to), from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// toQuestion converts a stored row. Choice sets written by older loaders
// may still be in mapping form, so the row goes through the same coercion
// as live candidates; the shape also feeds the fuzzy-sweep tie-break.
func toQuestion(row questionRow) (*entity.Question, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, err
	}
	choices, canonical, err := normalize.CoerceChoices(json.RawMessage(row.Options))
	if err != nil {
		return nil, err
	}
	return &entity.Question{
		ID:               id,
		Text:             row.QuestionText,
		Choices:          choices,
		CorrectLabel:     row.CorrectAnswer,
		Explanation:      row.Explanation,
		Difficulty:       constants.Difficulty(row.Difficulty),
		Topic:            row.Topic,
		Subtopic:         row.Subtopic,
		CreatedAt:        row.CreatedAt,
		CanonicalChoices: canonical,
	}, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
