package model

// Scorecard is what the assessment oracle returns for one answered question.
// Bounds are enforced through the binding tags before anything is persisted.
type Scorecard struct {
	MarksA               float64     `json:"marksA" binding:"gte=0,lte=1"`
	MarksB               float64     `json:"marksB" binding:"gte=0,lte=2"`
	MarksC               float64     `json:"marksC" binding:"gte=0,lte=3"`
	MarksD               float64     `json:"marksD" binding:"gte=0,lte=4"`
	FeedbackA            string      `json:"feedbackA"`
	FeedbackB            string      `json:"feedbackB"`
	FeedbackC            string      `json:"feedbackC"`
	FeedbackD            string      `json:"feedbackD"`
	HandWriting          HandWriting `json:"handWriting" binding:"required,oneof=Excellent Good Average Poor"`
	EvaluationConfidence float64     `json:"evaluationConfidence" binding:"gte=0,lte=1"`
	OverallFeedback      string      `json:"overallFeedback"`
}

// ImageInput is one answer photo handed to the oracle.
type ImageInput struct {
	MIMEType string
	Data     []byte
}

// GradeRequest carries everything the oracle needs to grade one question.
type GradeRequest struct {
	Question *CreativeQuestion
	Images   []ImageInput
}
