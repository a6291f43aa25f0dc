package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/service"
)

const questionColumns = `id, stem, question_a, question_b, question_c, question_d,
	answer_a, answer_b, answer_c, answer_d, created_at`

// QuestionRepository reads creative questions.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a single creative question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CreativeQuestion, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM creative_questions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// GetByIDs retrieves the questions that exist among ids, keyed by ID.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.CreativeQuestion, error) {
	out := make(map[uuid.UUID]*model.CreativeQuestion, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM creative_questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

func scanQuestion(row pgx.Row) (*model.CreativeQuestion, error) {
	q := &model.CreativeQuestion{}
	err := row.Scan(&q.ID, &q.Stem, &q.QuestionA, &q.QuestionB, &q.QuestionC, &q.QuestionD,
		&q.AnswerA, &q.AnswerB, &q.AnswerC, &q.AnswerD, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}
