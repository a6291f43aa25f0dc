package model

import (
	"time"

	"github.com/google/uuid"
)

// Topic is a study topic in the read-only catalog.
type Topic struct {
	ID       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	Tags     []string       `json:"tags"`
	Aliases  TopicAliases   `json:"aliases"`
	Segments []TopicSegment `json:"segments"`
}

// TopicAliases are alternative names a topic is known by.
type TopicAliases struct {
	English  []string `json:"english"`
	Bangla   []string `json:"bangla"`
	Banglish []string `json:"banglish"`
}

type TopicSegment struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TopicRef is the minimal projection returned by catalog searches.
type TopicRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Recommendation is the set of topics suggested to a user.
type Recommendation struct {
	UserID    uuid.UUID   `json:"user_id"`
	TopicIDs  []uuid.UUID `json:"topic_ids"`
	UpdatedAt time.Time   `json:"updated_at"`
}
