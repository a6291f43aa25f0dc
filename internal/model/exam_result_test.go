package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(a, b, c, d float64) AnswerEvaluation {
	return AnswerEvaluation{
		ID:         uuid.New(),
		QuestionID: uuid.New(),
		MarksA:     a,
		MarksB:     b,
		MarksC:     c,
		MarksD:     d,
	}
}

func TestRecompute_TotalEqualsSumOfAnswers(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	r.SetAnswers([]AnswerEvaluation{answer(1, 2, 3, 4), answer(1, 0, 3, 0), answer(0.5, 1.5, 2, 3.5)})

	assert.Equal(t, 10.0, r.Answers[0].MarksObtained)
	assert.Equal(t, 4.0, r.Answers[1].MarksObtained)
	assert.Equal(t, 7.5, r.Answers[2].MarksObtained)
	assert.Equal(t, 21.5, r.TotalMarksObtained)

	for _, a := range r.Answers {
		assert.Equal(t, float64(QuestionTotalMarks), a.TotalMarks)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	r.SetAnswers([]AnswerEvaluation{answer(1, 2, 3, 4), answer(1, 0, 3, 0)})

	first := r.TotalMarksObtained
	r.Recompute()
	r.Recompute()

	assert.Equal(t, first, r.TotalMarksObtained)
	assert.Equal(t, 14.0, r.TotalMarksObtained)
}

func TestRecompute_OverwritesStaleDerivedValues(t *testing.T) {
	a := answer(1, 1, 1, 1)
	a.MarksObtained = 99
	r := NewExamResult(uuid.New(), uuid.New())
	r.TotalMarksObtained = 1000

	r.SetAnswers([]AnswerEvaluation{a})

	assert.Equal(t, 4.0, r.Answers[0].MarksObtained)
	assert.Equal(t, 4.0, r.TotalMarksObtained)
}

func TestSetAnswers_EmptyListZeroesTotal(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	r.SetAnswers([]AnswerEvaluation{answer(1, 2, 3, 4)})
	r.SetAnswers(nil)

	assert.NotNil(t, r.Answers)
	assert.Empty(t, r.Answers)
	assert.Zero(t, r.TotalMarksObtained)
}

func TestZeroMarkParts(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	r.SetAnswers([]AnswerEvaluation{answer(1, 2, 3, 4), answer(1, 0, 3, 0), answer(0.5, 0, 0, 0.25)})

	assert.Equal(t, 4, r.ZeroMarkParts())
}

func TestParts_SchemaOrderAndMaxima(t *testing.T) {
	a := answer(1, 2, 3, 4)
	a.FeedbackC = "unit missing"

	parts := a.Parts()
	require.Len(t, parts, 4)
	assert.Equal(t, PartA, parts[0].Part)
	assert.Equal(t, 1.0, parts[0].MaxMarks)
	assert.Equal(t, PartD, parts[3].Part)
	assert.Equal(t, 4.0, parts[3].MaxMarks)
	assert.Equal(t, "unit missing", parts[2].Feedback)
}

func TestTransitionTo(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	assert.Equal(t, ResultStatusSubmitted, r.Status)

	require.NoError(t, r.TransitionTo(ResultStatusEvaluating))
	require.NoError(t, r.TransitionTo(ResultStatusReviewRequired))
	assert.True(t, r.Status.IsTerminal())

	err := r.TransitionTo(ResultStatusEvaluated)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ResultStatusReviewRequired, r.Status)
}

func TestTransitionTo_ErrorCanBeRetried(t *testing.T) {
	r := NewExamResult(uuid.New(), uuid.New())
	require.NoError(t, r.TransitionTo(ResultStatusError))
	assert.NoError(t, r.TransitionTo(ResultStatusEvaluating))
	assert.ErrorIs(t, NewExamResult(uuid.New(), uuid.New()).TransitionTo(ResultStatusEvaluated), ErrInvalidTransition)
}

func TestHandWritingValid(t *testing.T) {
	assert.True(t, HandWritingExcellent.Valid())
	assert.True(t, HandWritingPoor.Valid())
	assert.False(t, HandWriting("Illegible").Valid())
}
