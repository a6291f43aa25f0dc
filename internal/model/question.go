package model

import (
	"time"

	"github.com/google/uuid"
)

// CreativeQuestion is a four-part question with its model answers.
type CreativeQuestion struct {
	ID        uuid.UUID `json:"id"`
	Stem      string    `json:"stem"`
	QuestionA string    `json:"question_a"`
	QuestionB string    `json:"question_b"`
	QuestionC string    `json:"question_c"`
	QuestionD string    `json:"question_d"`
	AnswerA   string    `json:"answer_a"`
	AnswerB   string    `json:"answer_b"`
	AnswerC   string    `json:"answer_c"`
	AnswerD   string    `json:"answer_d"`
	CreatedAt time.Time `json:"created_at"`
}
