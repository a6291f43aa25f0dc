package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// NoTopicsSummary is used in the exam report when nothing could be recommended.
const NoTopicsSummary = "No specific topics could be recommended at this time. Please review your results carefully."

// RecommendationService turns weak spots in graded answers into study topic
// recommendations. It never fails the evaluation: every error is logged and
// yields no topics.
type RecommendationService struct {
	extractor TopicExtractor
	catalog   TopicCatalog
	store     RecommendationStore
	limit     int
	log       zerolog.Logger
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(
	extractor TopicExtractor,
	catalog TopicCatalog,
	store RecommendationStore,
	limit int,
	log zerolog.Logger,
) *RecommendationService {
	if limit <= 0 {
		limit = 5
	}
	return &RecommendationService{
		extractor: extractor,
		catalog:   catalog,
		store:     store,
		limit:     limit,
		log:       log.With().Str("component", "recommendation_service").Logger(),
	}
}

// Recommend extracts search phrases from the summary, matches them against
// the topic catalog and adds the matches to the user's recommendation set.
func (s *RecommendationService) Recommend(ctx context.Context, userID uuid.UUID, summary string) []model.TopicRef {
	log := s.log.With().Str("user_id", userID.String()).Logger()

	phrases, err := s.extractor.ExtractTopics(ctx, summary)
	if err != nil {
		log.Warn().Err(err).Msg("Topic extraction failed")
		return nil
	}

	keywords := ExtractKeywords(phrases)
	if len(keywords) == 0 {
		log.Debug().Strs("phrases", phrases).Msg("No usable keywords, skipping topic search")
		return nil
	}

	topics, err := s.catalog.SearchByKeywords(ctx, keywords, s.limit)
	if err != nil {
		log.Warn().Err(err).Strs("keywords", keywords).Msg("Topic search failed")
		return nil
	}
	if len(topics) == 0 {
		log.Debug().Strs("keywords", keywords).Msg("No topics matched")
		return nil
	}
	if len(topics) > s.limit {
		topics = topics[:s.limit]
	}

	ids := make([]uuid.UUID, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}
	if err := s.store.AddTopics(ctx, userID, ids); err != nil {
		log.Warn().Err(err).Msg("Saving recommendations failed")
		return nil
	}

	log.Info().Int("topics", len(topics)).Msg("Recommendations saved")
	return topics
}

// BuildPerformanceSummary describes every graded answer and the parts that
// fell short of full marks, with the oracle's feedback for each.
func BuildPerformanceSummary(answers []model.AnswerEvaluation, questions map[uuid.UUID]*model.CreativeQuestion) string {
	var b strings.Builder
	for i := range answers {
		ans := &answers[i]

		topic := "Unknown Topic"
		if q, ok := questions[ans.QuestionID]; ok && q != nil {
			topic = q.Stem
		}

		b.WriteString("\n-----------------------------------\n")
		fmt.Fprintf(&b, "Question %d\n", i+1)
		fmt.Fprintf(&b, "- Topic/Stem: %q\n", topic)
		fmt.Fprintf(&b, "- Marks Obtained: %s out of %s\n", formatMarks(ans.MarksObtained), formatMarks(ans.TotalMarks))
		b.WriteString("- Error Breakdown:\n")

		var lines []string
		for _, p := range ans.Parts() {
			if p.Marks < p.MaxMarks {
				lines = append(lines, fmt.Sprintf("- Part %s (Score: %s/%s): %s",
					p.Part, formatMarks(p.Marks), formatMarks(p.MaxMarks), p.Feedback))
			}
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

// SummarizeTopics renders recommended topics for the exam report.
func SummarizeTopics(topics []model.TopicRef) string {
	if len(topics) == 0 {
		return NoTopicsSummary
	}
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, fmt.Sprintf("Topic: %s, ID: {{%s}}", t.Name, t.ID))
	}
	return strings.Join(lines, "\n")
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
