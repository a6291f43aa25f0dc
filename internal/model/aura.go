package model

import (
	"time"

	"github.com/google/uuid"
)

// AuraSourceCQResult tags ledger entries produced by creative question exams.
const AuraSourceCQResult = "cq_result"

// AuraLedgerEntry is one append-only change to a user's aura balance.
type AuraLedgerEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Points     int       `json:"points"`
	SourceType string    `json:"source_type"`
	SourceID   uuid.UUID `json:"source_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
