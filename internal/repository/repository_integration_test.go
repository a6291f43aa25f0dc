//go:build integration
// +build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		fmt.Println("TEST_DATABASE_URL not set, skipping repository integration tests")
		os.Exit(0)
	}

	if err := migrateUp(dbURL); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		fmt.Printf("DB connect failed: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

func migrateUp(dbURL string) error {
	m, err := migrate.New("file://../../migrations", dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// resetTables empties every table. Order matters due to FK.
func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE cq_answer_evaluations, cq_results, aura_transactions, recommendations,
		          topic_segments, topics, user_activities, creative_questions, users`)
	require.NoError(t, err)
}

func createUser(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Name: name}
	require.NoError(t, NewUserRepository(testPool).Create(context.Background(), u))
	return u
}

func evaluatingResult(examID, userID uuid.UUID) *model.ExamResult {
	res := model.NewExamResult(examID, userID)
	res.Status = model.ResultStatusEvaluating
	res.AIModelVersion = "gemini-test"
	return res
}

func answer(questionID uuid.UUID, a, b, c, d float64) model.AnswerEvaluation {
	return model.AnswerEvaluation{
		QuestionID:           questionID,
		OriginalImages:       []string{"archive/" + questionID.String() + ".webp"},
		MarksA:               a,
		MarksB:               b,
		MarksC:               c,
		MarksD:               d,
		HandWriting:          model.HandWritingGood,
		EvaluationConfidence: 0.9,
	}
}

func TestUserRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewUserRepository(testPool)

	u := createUser(t, "Rahim")
	assert.Equal(t, 0, u.Aura)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rahim", got.Name)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestExamResultRepository_CreateEvaluating(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewExamResultRepository(testPool, time.Minute)
	user := createUser(t, "Karim")
	examID := uuid.New()

	first := evaluatingResult(examID, user.ID)
	require.NoError(t, repo.CreateEvaluating(ctx, first))

	t.Run("in-flight attempt is a duplicate", func(t *testing.T) {
		err := repo.CreateEvaluating(ctx, evaluatingResult(examID, user.ID))
		assert.ErrorIs(t, err, service.ErrDuplicateSubmission)
	})

	t.Run("failed attempt is reused", func(t *testing.T) {
		first.Status = model.ResultStatusError
		first.SetError("oracle unavailable")
		first.SetAnswers([]model.AnswerEvaluation{answer(uuid.New(), 1, 1, 1, 1)})
		require.NoError(t, repo.Save(ctx, first))

		retry := evaluatingResult(examID, user.ID)
		require.NoError(t, repo.CreateEvaluating(ctx, retry))
		assert.Equal(t, first.ID, retry.ID)

		got, err := repo.GetByID(ctx, retry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ResultStatusEvaluating, got.Status)
		assert.Nil(t, got.ErrorMessage)
		assert.Empty(t, got.Answers)
	})

	t.Run("abandoned evaluating attempt is reclaimed", func(t *testing.T) {
		otherExam := uuid.New()
		stuck := evaluatingResult(otherExam, user.ID)
		require.NoError(t, repo.CreateEvaluating(ctx, stuck))

		err := repo.CreateEvaluating(ctx, evaluatingResult(otherExam, user.ID))
		require.ErrorIs(t, err, service.ErrDuplicateSubmission)

		_, err = testPool.Exec(ctx,
			`UPDATE cq_results SET updated_at = NOW() - INTERVAL '2 minutes' WHERE id = $1`, stuck.ID)
		require.NoError(t, err)

		reclaimed := evaluatingResult(otherExam, user.ID)
		require.NoError(t, repo.CreateEvaluating(ctx, reclaimed))
		assert.Equal(t, stuck.ID, reclaimed.ID)
	})

	t.Run("reclaiming can be disabled", func(t *testing.T) {
		strict := NewExamResultRepository(testPool, 0)
		otherExam := uuid.New()
		stuck := evaluatingResult(otherExam, user.ID)
		require.NoError(t, strict.CreateEvaluating(ctx, stuck))
		_, err := testPool.Exec(ctx,
			`UPDATE cq_results SET updated_at = NOW() - INTERVAL '1 day' WHERE id = $1`, stuck.ID)
		require.NoError(t, err)

		err = strict.CreateEvaluating(ctx, evaluatingResult(otherExam, user.ID))
		assert.ErrorIs(t, err, service.ErrDuplicateSubmission)
	})

	t.Run("evaluated attempt is a duplicate", func(t *testing.T) {
		first.Status = model.ResultStatusEvaluated
		first.SetError("")
		require.NoError(t, repo.Save(ctx, first))

		err := repo.CreateEvaluating(ctx, evaluatingResult(examID, user.ID))
		assert.ErrorIs(t, err, service.ErrDuplicateSubmission)
	})
}

func TestExamResultRepository_SaveKeepsAnswerOrder(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewExamResultRepository(testPool, time.Minute)
	user := createUser(t, "Nadia")

	res := evaluatingResult(uuid.New(), user.ID)
	require.NoError(t, repo.CreateEvaluating(ctx, res))

	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	res.SetAnswers([]model.AnswerEvaluation{
		answer(q3, 1, 2, 3, 4),
		answer(q1, 0, 1, 0, 2),
		answer(q2, 0.5, 1.5, 2, 3),
	})
	require.NoError(t, res.TransitionTo(model.ResultStatusEvaluated))
	res.AuraChange = 240
	require.NoError(t, repo.Save(ctx, res))

	got, err := repo.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, got.Answers, 3)
	assert.Equal(t, []uuid.UUID{q3, q1, q2}, []uuid.UUID{
		got.Answers[0].QuestionID, got.Answers[1].QuestionID, got.Answers[2].QuestionID,
	})
	assert.Equal(t, 10.0, got.Answers[0].MarksObtained)
	assert.Equal(t, model.HandWritingGood, got.Answers[1].HandWriting)
	assert.InDelta(t, res.TotalMarksObtained, got.TotalMarksObtained, 1e-9)
	assert.Equal(t, 240, got.AuraChange)
	assert.Equal(t, model.ResultStatusEvaluated, got.Status)
	assert.Equal(t, "gemini-test", got.AIModelVersion)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrResultNotFound)

	missing := evaluatingResult(uuid.New(), user.ID)
	assert.ErrorIs(t, repo.Save(ctx, missing), service.ErrResultNotFound)
}

func TestExamResultRepository_ListByUser(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewExamResultRepository(testPool, time.Minute)
	user := createUser(t, "Tania")
	other := createUser(t, "Other")

	for i := range 5 {
		res := evaluatingResult(uuid.New(), user.ID)
		require.NoError(t, repo.CreateEvaluating(ctx, res))
		if i%2 == 0 {
			res.Status = model.ResultStatusEvaluated
			require.NoError(t, repo.Save(ctx, res))
		}
	}
	require.NoError(t, repo.CreateEvaluating(ctx, evaluatingResult(uuid.New(), other.ID)))

	page, total, err := repo.ListByUser(ctx, user.ID, model.ListResultsQuery{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.False(t, page[0].CreatedAt.Before(page[1].CreatedAt))
	assert.Empty(t, page[0].Answers)

	evaluated, total, err := repo.ListByUser(ctx, user.ID, model.ListResultsQuery{
		Page: 1, PerPage: 10, Status: string(model.ResultStatusEvaluated),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, r := range evaluated {
		assert.Equal(t, model.ResultStatusEvaluated, r.Status)
		assert.Equal(t, user.ID, r.UserID)
	}
}

func TestAuraRepository_ApplyAuraChange(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewAuraRepository(testPool)
	users := NewUserRepository(testPool)
	user := createUser(t, "Sakib")

	entry := &model.AuraLedgerEntry{
		ID:         uuid.New(),
		UserID:     user.ID,
		Points:     75,
		SourceType: model.AuraSourceCQResult,
		SourceID:   uuid.New(),
		Reason:     "creative question exam",
	}
	require.NoError(t, repo.ApplyAuraChange(ctx, entry))

	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.Aura)

	t.Run("same source is credited once", func(t *testing.T) {
		again := *entry
		again.ID = uuid.New()
		assert.ErrorIs(t, repo.ApplyAuraChange(ctx, &again), service.ErrLedgerEntryExists)

		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 75, got.Aura)
	})

	t.Run("negative change lowers the balance", func(t *testing.T) {
		require.NoError(t, repo.ApplyAuraChange(ctx, &model.AuraLedgerEntry{
			ID:         uuid.New(),
			UserID:     user.ID,
			Points:     -10,
			SourceType: model.AuraSourceCQResult,
			SourceID:   uuid.New(),
		}))
		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 65, got.Aura)
	})
}

func TestTopicRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewTopicRepository(testPool)
	user := createUser(t, "Mitu")

	photosynthesis := &model.Topic{
		Name: "Photosynthesis",
		Tags: []string{"biology", "plants"},
		Aliases: model.TopicAliases{
			English:  []string{"light reaction"},
			Banglish: []string{"shalokshongshleshon"},
		},
		Segments: []model.TopicSegment{
			{Title: "Chlorophyll", Description: "Pigments that absorb light"},
			{Title: "Calvin cycle", Description: "Carbon fixation"},
		},
	}
	newton := &model.Topic{Name: "Newton's Laws", Tags: []string{"physics"}}
	require.NoError(t, repo.Upsert(ctx, photosynthesis))
	require.NoError(t, repo.Upsert(ctx, newton))

	t.Run("upsert by name keeps the ID", func(t *testing.T) {
		again := &model.Topic{
			Name:     "Photosynthesis",
			Tags:     []string{"biology"},
			Aliases:  photosynthesis.Aliases,
			Segments: []model.TopicSegment{{Title: "Stomata"}},
		}
		require.NoError(t, repo.Upsert(ctx, again))
		assert.Equal(t, photosynthesis.ID, again.ID)

		var segments int
		require.NoError(t, testPool.QueryRow(ctx,
			`SELECT COUNT(*) FROM topic_segments WHERE topic_id = $1`, again.ID).Scan(&segments))
		assert.Equal(t, 1, segments)
	})

	t.Run("search matches name, tags and segments case-insensitively", func(t *testing.T) {
		tests := []struct {
			keywords []string
			want     []string
		}{
			{[]string{"PHOTOSYNTHESIS"}, []string{"Photosynthesis"}},
			{[]string{"physics"}, []string{"Newton's Laws"}},
			{[]string{"stomata"}, []string{"Photosynthesis"}},
			{[]string{"shalok"}, []string{"Photosynthesis"}},
			{[]string{"newton's", "biology"}, []string{"Newton's Laws", "Photosynthesis"}},
			{[]string{"chemistry"}, nil},
			{[]string{"  "}, nil},
		}
		for _, tt := range tests {
			refs, err := repo.SearchByKeywords(ctx, tt.keywords, 10)
			require.NoError(t, err)
			var names []string
			for _, r := range refs {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names, "keywords %v", tt.keywords)
		}
	})

	t.Run("search honours the limit", func(t *testing.T) {
		refs, err := repo.SearchByKeywords(ctx, []string{"newton", "photo"}, 1)
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("recommendations are a set", func(t *testing.T) {
		require.NoError(t, repo.AddTopics(ctx, user.ID, []uuid.UUID{photosynthesis.ID}))
		require.NoError(t, repo.AddTopics(ctx, user.ID, []uuid.UUID{photosynthesis.ID, newton.ID}))
		require.NoError(t, repo.AddTopics(ctx, user.ID, nil))

		var count int
		require.NoError(t, testPool.QueryRow(ctx,
			`SELECT COUNT(*) FROM recommendations WHERE user_id = $1`, user.ID).Scan(&count))
		assert.Equal(t, 2, count)
	})
}

func TestActivityRepository_Record(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	user := createUser(t, "Rafi")

	a := &model.UserActivity{
		UserID:       user.ID,
		ActivityType: model.ActivityExamSubmitted,
		ExamID:       uuid.New(),
		ExamType:     model.ExamTypeCQ,
		Message:      "Submitted a creative question exam",
	}
	require.NoError(t, NewActivityRepository(testPool).Record(ctx, a))
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
}
