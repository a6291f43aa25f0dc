package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/service"
)

const resultColumns = `id, exam_id, user_id, status, total_marks_obtained, aura_change,
	feedback, evaluated_by, ai_model_version, error_message, evaluated_at, created_at, updated_at`

// ExamResultRepository handles creative question exam results.
type ExamResultRepository struct {
	pool       *pgxpool.Pool
	staleAfter time.Duration
	now        func() time.Time
}

// NewExamResultRepository creates a new ExamResultRepository. An attempt left
// evaluating for longer than staleAfter is treated as abandoned and may be
// reclaimed by a new submission; zero disables reclaiming.
func NewExamResultRepository(pool *pgxpool.Pool, staleAfter time.Duration) *ExamResultRepository {
	return &ExamResultRepository{pool: pool, staleAfter: staleAfter, now: time.Now}
}

// staleCutoff is the last update time before which an evaluating attempt
// counts as abandoned.
func (r *ExamResultRepository) staleCutoff() time.Time {
	if r.staleAfter <= 0 {
		return time.Time{}
	}
	return r.now().Add(-r.staleAfter)
}

// CreateEvaluating inserts the result row for a new attempt. A previous
// attempt that ended in error, or that was abandoned while evaluating, is
// reset and reused, keeping its ID. Any other existing attempt for the same
// exam and user is a duplicate.
func (r *ExamResultRepository) CreateEvaluating(ctx context.Context, res *model.ExamResult) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO cq_results (id, exam_id, user_id, status, total_marks_obtained, aura_change,
				feedback, evaluated_by, ai_model_version, error_message)
			 VALUES ($1, $2, $3, $4, 0, 0, '', $5, $6, NULL)
			 ON CONFLICT (exam_id, user_id) DO UPDATE
			 SET status = EXCLUDED.status,
			     total_marks_obtained = 0,
			     aura_change = 0,
			     feedback = '',
			     evaluated_by = EXCLUDED.evaluated_by,
			     ai_model_version = EXCLUDED.ai_model_version,
			     error_message = NULL,
			     evaluated_at = NULL,
			     updated_at = NOW()
			 WHERE cq_results.status = $7
			    OR (cq_results.status = $8 AND cq_results.updated_at < $9)
			 RETURNING id, created_at, updated_at`,
			res.ID, res.ExamID, res.UserID, res.Status, res.EvaluatedBy, res.AIModelVersion,
			model.ResultStatusError, model.ResultStatusEvaluating, r.staleCutoff(),
		).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return service.ErrDuplicateSubmission
			}
			return err
		}

		// Drop answers left over from a failed attempt.
		_, err = tx.Exec(ctx, `DELETE FROM cq_answer_evaluations WHERE result_id = $1`, res.ID)
		return err
	})
}

// Save writes the result and replaces its answers in one transaction.
func (r *ExamResultRepository) Save(ctx context.Context, res *model.ExamResult) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE cq_results
			 SET status = $1, total_marks_obtained = $2, aura_change = $3, feedback = $4,
			     evaluated_by = $5, ai_model_version = $6, error_message = $7, evaluated_at = $8,
			     updated_at = NOW()
			 WHERE id = $9`,
			res.Status, res.TotalMarksObtained, res.AuraChange, res.Feedback,
			res.EvaluatedBy, res.AIModelVersion, res.ErrorMessage, res.EvaluatedAt, res.ID)
		if err != nil {
			return fmt.Errorf("update result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return service.ErrResultNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cq_answer_evaluations WHERE result_id = $1`, res.ID); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		if len(res.Answers) == 0 {
			return nil
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"cq_answer_evaluations"},
			[]string{
				"id", "result_id", "position", "question_id", "original_images",
				"marks_a", "marks_b", "marks_c", "marks_d",
				"feedback_a", "feedback_b", "feedback_c", "feedback_d",
				"hand_writing", "feedback", "marks_obtained", "total_marks", "evaluation_confidence",
			},
			pgx.CopyFromSlice(len(res.Answers), func(i int) ([]any, error) {
				a := &res.Answers[i]
				if a.ID == uuid.Nil {
					a.ID = uuid.New()
				}
				images := a.OriginalImages
				if images == nil {
					images = []string{}
				}
				return []any{
					a.ID, res.ID, i, a.QuestionID, images,
					a.MarksA, a.MarksB, a.MarksC, a.MarksD,
					a.FeedbackA, a.FeedbackB, a.FeedbackC, a.FeedbackD,
					string(a.HandWriting), a.Feedback, a.MarksObtained, a.TotalMarks, a.EvaluationConfidence,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a result with its answers in submission order.
func (r *ExamResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamResult, error) {
	res, err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM cq_results WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrResultNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, original_images, marks_a, marks_b, marks_c, marks_d,
		        feedback_a, feedback_b, feedback_c, feedback_d, hand_writing, feedback,
		        marks_obtained, total_marks, evaluation_confidence
		 FROM cq_answer_evaluations
		 WHERE result_id = $1
		 ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res.Answers = []model.AnswerEvaluation{}
	for rows.Next() {
		var a model.AnswerEvaluation
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.OriginalImages,
			&a.MarksA, &a.MarksB, &a.MarksC, &a.MarksD,
			&a.FeedbackA, &a.FeedbackB, &a.FeedbackC, &a.FeedbackD,
			&a.HandWriting, &a.Feedback, &a.MarksObtained, &a.TotalMarks, &a.EvaluationConfidence,
		); err != nil {
			return nil, err
		}
		res.Answers = append(res.Answers, a)
	}
	return res, rows.Err()
}

// ListByUser retrieves a page of a user's results, newest first, without answers.
func (r *ExamResultRepository) ListByUser(ctx context.Context, userID uuid.UUID, q model.ListResultsQuery) ([]model.ExamResult, int64, error) {
	offset := (q.Page - 1) * q.PerPage

	baseQuery := ` FROM cq_results WHERE user_id = $1`
	args := []any{userID}

	if q.Status != "" {
		args = append(args, q.Status)
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.PerPage, offset)
	query := "SELECT " + resultColumns + baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *res)
	}
	return results, total, rows.Err()
}

func scanResult(row pgx.Row) (*model.ExamResult, error) {
	res := &model.ExamResult{}
	err := row.Scan(&res.ID, &res.ExamID, &res.UserID, &res.Status, &res.TotalMarksObtained,
		&res.AuraChange, &res.Feedback, &res.EvaluatedBy, &res.AIModelVersion, &res.ErrorMessage,
		&res.EvaluatedAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}
