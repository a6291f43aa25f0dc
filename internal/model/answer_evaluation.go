package model

import (
	"github.com/google/uuid"
)

// Part identifies one sub-question of a creative question.
type Part string

const (
	PartA Part = "A"
	PartB Part = "B"
	PartC Part = "C"
	PartD Part = "D"
)

// PartSpec pairs a part with the maximum marks it can earn.
type PartSpec struct {
	Part     Part
	MaxMarks float64
}

// PartSchema is the fixed creative question layout, in order.
var PartSchema = [4]PartSpec{
	{Part: PartA, MaxMarks: 1},
	{Part: PartB, MaxMarks: 2},
	{Part: PartC, MaxMarks: 3},
	{Part: PartD, MaxMarks: 4},
}

// QuestionTotalMarks is the sum of PartSchema maxima.
const QuestionTotalMarks = 10

// HandWriting grades how legible the answer script was.
type HandWriting string

const (
	HandWritingExcellent HandWriting = "Excellent"
	HandWritingGood      HandWriting = "Good"
	HandWritingAverage   HandWriting = "Average"
	HandWritingPoor      HandWriting = "Poor"
)

// Valid reports whether h is one of the known grades.
func (h HandWriting) Valid() bool {
	switch h {
	case HandWritingExcellent, HandWritingGood, HandWritingAverage, HandWritingPoor:
		return true
	}
	return false
}

// PartScore is the marks and feedback for a single part.
type PartScore struct {
	Part     Part    `json:"part"`
	Marks    float64 `json:"marks"`
	MaxMarks float64 `json:"max_marks"`
	Feedback string  `json:"feedback"`
}

// AnswerEvaluation is the graded answer to one creative question.
type AnswerEvaluation struct {
	ID                   uuid.UUID   `json:"id"`
	QuestionID           uuid.UUID   `json:"question_id"`
	OriginalImages       []string    `json:"original_images"`
	MarksA               float64     `json:"marks_a"`
	MarksB               float64     `json:"marks_b"`
	MarksC               float64     `json:"marks_c"`
	MarksD               float64     `json:"marks_d"`
	FeedbackA            string      `json:"feedback_a"`
	FeedbackB            string      `json:"feedback_b"`
	FeedbackC            string      `json:"feedback_c"`
	FeedbackD            string      `json:"feedback_d"`
	HandWriting          HandWriting `json:"hand_writing"`
	Feedback             string      `json:"feedback,omitempty"`
	MarksObtained        float64     `json:"marks_obtained"`
	TotalMarks           float64     `json:"total_marks"`
	EvaluationConfidence float64     `json:"evaluation_confidence"`
}

// Parts returns the part scores in schema order.
func (a *AnswerEvaluation) Parts() [4]PartScore {
	marks := [4]float64{a.MarksA, a.MarksB, a.MarksC, a.MarksD}
	feedback := [4]string{a.FeedbackA, a.FeedbackB, a.FeedbackC, a.FeedbackD}

	var out [4]PartScore
	for i, part := range PartSchema {
		out[i] = PartScore{
			Part:     part.Part,
			Marks:    marks[i],
			MaxMarks: part.MaxMarks,
			Feedback: feedback[i],
		}
	}
	return out
}

// Recompute derives MarksObtained from the part marks and pins TotalMarks.
func (a *AnswerEvaluation) Recompute() {
	a.MarksObtained = a.MarksA + a.MarksB + a.MarksC + a.MarksD
	a.TotalMarks = QuestionTotalMarks
}

// ZeroMarkParts counts parts that scored exactly zero.
func (a *AnswerEvaluation) ZeroMarkParts() int {
	n := 0
	for _, p := range a.Parts() {
		if p.Marks == 0 {
			n++
		}
	}
	return n
}
