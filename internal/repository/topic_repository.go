package repository

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// TopicRepository handles the study topic catalog and user recommendations.
type TopicRepository struct {
	pool *pgxpool.Pool
}

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository(pool *pgxpool.Pool) *TopicRepository {
	return &TopicRepository{pool: pool}
}

// KeywordPattern builds a case-insensitive alternation matching any keyword
// literally. It returns "" when there is nothing to match.
func KeywordPattern(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(kw))
	}
	return strings.Join(parts, "|")
}

// SearchByKeywords returns up to limit topics whose name, tags, English or
// Banglish aliases, or any segment title or description match a keyword.
func (r *TopicRepository) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]model.TopicRef, error) {
	pattern := KeywordPattern(keywords)
	if pattern == "" {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.name
		 FROM topics t
		 WHERE t.name ~* $1
		    OR array_to_string(t.tags, ' ') ~* $1
		    OR array_to_string(t.aliases_english, ' ') ~* $1
		    OR array_to_string(t.aliases_banglish, ' ') ~* $1
		    OR EXISTS (
		        SELECT 1 FROM topic_segments s
		        WHERE s.topic_id = t.id AND (s.title ~* $1 OR s.description ~* $1)
		    )
		 ORDER BY t.name
		 LIMIT $2`, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []model.TopicRef
	for rows.Next() {
		var t model.TopicRef
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Upsert creates or replaces a catalog topic by name, including its segments.
func (r *TopicRepository) Upsert(ctx context.Context, t *model.Topic) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO topics (id, name, tags, aliases_english, aliases_bangla, aliases_banglish)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (name) DO UPDATE
			 SET tags = EXCLUDED.tags,
			     aliases_english = EXCLUDED.aliases_english,
			     aliases_bangla = EXCLUDED.aliases_bangla,
			     aliases_banglish = EXCLUDED.aliases_banglish
			 RETURNING id`,
			t.ID, t.Name, nonNil(t.Tags), nonNil(t.Aliases.English),
			nonNil(t.Aliases.Bangla), nonNil(t.Aliases.Banglish),
		).Scan(&t.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM topic_segments WHERE topic_id = $1`, t.ID); err != nil {
			return err
		}
		if len(t.Segments) == 0 {
			return nil
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"topic_segments"},
			[]string{"topic_id", "position", "title", "description"},
			pgx.CopyFromSlice(len(t.Segments), func(i int) ([]any, error) {
				return []any{t.ID, i, t.Segments[i].Title, t.Segments[i].Description}, nil
			}),
		)
		return err
	})
}

// AddTopics adds topics to the user's recommendation set. Topics already
// recommended are left alone.
func (r *TopicRepository) AddTopics(ctx context.Context, userID uuid.UUID, topicIDs []uuid.UUID) error {
	if len(topicIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO recommendations (user_id, topic_id)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT (user_id, topic_id) DO NOTHING`,
		userID, topicIDs)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
