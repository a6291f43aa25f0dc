// Package llm implements the assessment oracle, topic extraction and exam
// report writing on top of Google Gemini.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/model"
	"google.golang.org/api/option"
)

// ErrMissingAPIKey is returned when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

// ErrEmptyResponse is returned when Gemini produced no text.
var ErrEmptyResponse = errors.New("gemini returned no content")

// Gemini grades answers, extracts study topics and writes exam reports.
type Gemini struct {
	client    *genai.Client
	grader    *genai.GenerativeModel
	analyst   *genai.GenerativeModel
	tutor     *genai.GenerativeModel
	modelName string
	log       zerolog.Logger
}

// NewGemini creates a client for the named multimodal model.
func NewGemini(ctx context.Context, apiKey, modelName string, log zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	grader := client.GenerativeModel(modelName)
	grader.SystemInstruction = genai.NewUserContent(genai.Text(graderInstruction))
	grader.ResponseMIMEType = "application/json"
	grader.ResponseSchema = scorecardSchema
	grader.SetTemperature(0.2)

	analyst := client.GenerativeModel(modelName)
	analyst.SystemInstruction = genai.NewUserContent(genai.Text(analystInstruction))
	analyst.ResponseMIMEType = "application/json"
	analyst.SetTemperature(0.3)

	tutor := client.GenerativeModel(modelName)
	tutor.SystemInstruction = genai.NewUserContent(genai.Text(tutorInstruction))
	tutor.SetTemperature(0.6)

	return &Gemini{
		client:    client,
		grader:    grader,
		analyst:   analyst,
		tutor:     tutor,
		modelName: modelName,
		log:       log.With().Str("component", "gemini").Str("model", modelName).Logger(),
	}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// ModelVersion names the model that grades answers.
func (g *Gemini) ModelVersion() string {
	return g.modelName
}

// Grade sends the answer photos with the question and model answers and
// decodes the returned scorecard. Bounds are checked by the caller.
func (g *Gemini) Grade(ctx context.Context, req model.GradeRequest) (*model.Scorecard, error) {
	if req.Question == nil {
		return nil, errors.New("grade request has no question")
	}
	if len(req.Images) == 0 {
		return nil, errors.New("grade request has no images")
	}

	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.ImageData(imageFormat(img.MIMEType), img.Data))
	}
	parts = append(parts, genai.Text(gradingPrompt(req.Question, len(req.Images))))

	text, err := g.generate(ctx, g.grader, parts...)
	if err != nil {
		return nil, err
	}

	card, err := parseScorecard(text)
	if err != nil {
		g.log.Warn().Err(err).Str("question_id", req.Question.ID.String()).Msg("Unparseable scorecard")
		return nil, err
	}
	return card, nil
}

// ExtractTopics returns search phrases for the concepts the summary shows
// the student struggled with.
func (g *Gemini) ExtractTopics(ctx context.Context, summary string) ([]string, error) {
	text, err := g.generate(ctx, g.analyst, genai.Text(topicAnalysisPrompt(summary)))
	if err != nil {
		return nil, err
	}
	return parseSearchTerms(text)
}

// WriteExamReport writes the overall exam report.
func (g *Gemini) WriteExamReport(ctx context.Context, summary, topics string) (string, error) {
	text, err := g.generate(ctx, g.tutor, genai.Text(examReportPrompt(summary, topics)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) generate(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// imageFormat converts a MIME type to the short format genai.ImageData expects.
func imageFormat(mimeType string) string {
	return strings.TrimPrefix(mimeType, "image/")
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseScorecard(text string) (*model.Scorecard, error) {
	var card model.Scorecard
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &card); err != nil {
		return nil, fmt.Errorf("decode scorecard: %w", err)
	}
	return &card, nil
}

func parseSearchTerms(text string) ([]string, error) {
	var out struct {
		SearchTerms []string `json:"search_terms"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &out); err != nil {
		return nil, fmt.Errorf("decode search terms: %w", err)
	}

	terms := make([]string, 0, len(out.SearchTerms))
	for _, t := range out.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

var scorecardSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"marksA":               {Type: genai.TypeNumber, Description: "Marks for part A, 0 to 1."},
		"marksB":               {Type: genai.TypeNumber, Description: "Marks for part B, 0 to 2."},
		"marksC":               {Type: genai.TypeNumber, Description: "Marks for part C, 0 to 3."},
		"marksD":               {Type: genai.TypeNumber, Description: "Marks for part D, 0 to 4."},
		"feedbackA":            {Type: genai.TypeString},
		"feedbackB":            {Type: genai.TypeString},
		"feedbackC":            {Type: genai.TypeString},
		"feedbackD":            {Type: genai.TypeString},
		"handWriting":          {Type: genai.TypeString, Enum: []string{"Excellent", "Good", "Average", "Poor"}},
		"evaluationConfidence": {Type: genai.TypeNumber, Description: "Confidence in the grading, 0 to 1."},
		"overallFeedback":      {Type: genai.TypeString},
	},
	Required: []string{
		"marksA", "marksB", "marksC", "marksD",
		"feedbackA", "feedbackB", "feedbackC", "feedbackD",
		"handWriting", "evaluationConfidence",
	},
}
