package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProgressRepository manages the user_progress association table. The
// pipeline itself never writes progress rows; it only has to clear them
// before questions they reference are deleted.
type ProgressRepository interface {
	DeleteByQuestionIDs(ctx context.Context, questionIDs []uuid.UUID) (int64, error)
	CountByQuestionIDs(ctx context.Context, questionIDs []uuid.UUID) (int, error)
	Record(ctx context.Context, questionID uuid.UUID, userID string, correct bool) error
}

type progressRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewProgressRepository(db *sqlx.DB, logger *slog.Logger) ProgressRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &progressRepository{db: db, logger: logger}
}

func (r *progressRepository) DeleteByQuestionIDs(ctx context.Context, questionIDs []uuid.UUID) (int64, error) {
	if len(questionIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM user_progress WHERE question_id IN (?)`, idStrings(questionIDs))
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("failed to delete progress rows", "questions", len(questionIDs), "error", err)
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *progressRepository) CountByQuestionIDs(ctx context.Context, questionIDs []uuid.UUID) (int, error) {
	if len(questionIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM user_progress WHERE question_id IN (?)`, idStrings(questionIDs))
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *progressRepository) Record(ctx context.Context, questionID uuid.UUID, userID string, correct bool) error {
	query := r.db.Rebind(`INSERT INTO user_progress (id, question_id, user_id, is_correct, answered_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), questionID.String(), userID, boolToInt(correct), time.Now().UTC())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
