package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cq-evaluator/internal/model"
)

// Aura rates for creative question exams. The zero-part penalty is flat and
// does not scale with the number of questions.
const (
	AuraPerMark     = 10
	AuraPerZeroPart = -5
)

// ErrLedgerEntryExists is returned by a BalanceStore when the source of an
// entry has already been credited.
var ErrLedgerEntryExists = errors.New("aura ledger entry already exists for source")

// AuraBreakdown explains how an aura change was derived.
type AuraBreakdown struct {
	Marks     float64 `json:"marks"`
	FromMarks int     `json:"from_marks"`
	ZeroParts int     `json:"zero_parts"`
	FromZeros int     `json:"from_zeros"`
	Total     int     `json:"total"`
}

// ComputeAura derives the aura delta for a result from its current totals.
func ComputeAura(r *model.ExamResult) AuraBreakdown {
	b := AuraBreakdown{
		Marks:     r.TotalMarksObtained,
		FromMarks: int(math.Round(r.TotalMarksObtained * AuraPerMark)),
		ZeroParts: r.ZeroMarkParts(),
	}
	b.FromZeros = b.ZeroParts * AuraPerZeroPart
	b.Total = b.FromMarks + b.FromZeros
	return b
}

// Reason renders the ledger description for the breakdown.
func (b AuraBreakdown) Reason() string {
	return fmt.Sprintf("CQ Exam: %s marks gained (+%d), %d zero-mark parts (%d).",
		strconv.FormatFloat(b.Marks, 'f', -1, 64), b.FromMarks, b.ZeroParts, b.FromZeros)
}

// AuraService credits aura for evaluated exams.
type AuraService struct {
	store BalanceStore
	log   zerolog.Logger
}

// NewAuraService creates a new AuraService.
func NewAuraService(store BalanceStore, log zerolog.Logger) *AuraService {
	return &AuraService{
		store: store,
		log:   log.With().Str("component", "aura_service").Logger(),
	}
}

// Apply computes the aura change for r and, when non-zero, increments the
// user's balance and appends one ledger entry in a single atomic step.
// A zero change writes nothing. The breakdown is returned even on error.
func (s *AuraService) Apply(ctx context.Context, r *model.ExamResult) (AuraBreakdown, error) {
	b := ComputeAura(r)
	if b.Total == 0 {
		return b, nil
	}

	entry := &model.AuraLedgerEntry{
		ID:         uuid.New(),
		UserID:     r.UserID,
		Points:     b.Total,
		SourceType: model.AuraSourceCQResult,
		SourceID:   r.ID,
		Reason:     b.Reason(),
	}

	if err := s.store.ApplyAuraChange(ctx, entry); err != nil {
		if errors.Is(err, ErrLedgerEntryExists) {
			s.log.Info().
				Str("result_id", r.ID.String()).
				Msg("Aura already credited for this result, skipping")
			return b, nil
		}
		return b, fmt.Errorf("apply aura change: %w", err)
	}

	s.log.Info().
		Str("user_id", r.UserID.String()).
		Str("result_id", r.ID.String()).
		Int("points", b.Total).
		Msg("Aura credited")
	return b, nil
}
