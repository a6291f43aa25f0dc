package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a student account. Aura is the running gamification balance and is
// only changed through the aura ledger.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Aura      int       `json:"aura"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
