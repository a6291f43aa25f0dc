package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/service"
)

// AuraRepository keeps user aura balances and their ledger in step.
type AuraRepository struct {
	pool *pgxpool.Pool
}

// NewAuraRepository creates a new AuraRepository.
func NewAuraRepository(pool *pgxpool.Pool) *AuraRepository {
	return &AuraRepository{pool: pool}
}

// ApplyAuraChange appends the ledger entry and increments the balance in one
// transaction. A source that was already credited yields
// service.ErrLedgerEntryExists and changes nothing.
func (r *AuraRepository) ApplyAuraChange(ctx context.Context, e *model.AuraLedgerEntry) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO aura_transactions (id, user_id, points, source_type, source_id, reason)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (source_type, source_id) DO NOTHING`,
			e.ID, e.UserID, e.Points, e.SourceType, e.SourceID, e.Reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrLedgerEntryExists
		}

		tag, err = tx.Exec(ctx,
			`UPDATE users SET aura = aura + $1, updated_at = NOW() WHERE id = $2`,
			e.Points, e.UserID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrBalanceNotConfirmed
		}
		return nil
	})
}

