package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonforge/scribe/internal/types"
)

// OutcomeStore persists generation outcomes for reporting beyond process
// lifetime. The tracker treats persistence as best effort.
type OutcomeStore interface {
	Insert(ctx context.Context, o types.GenerationOutcome) error
}

// PostgresStore writes outcomes to the generation_outcomes table
// (see migrations/).
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, o types.GenerationOutcome) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO generation_outcomes
			(id, ts, workflow_id, step_name, provider, model,
			 input_tokens, output_tokens, cost_usd, duration_ms,
			 status, error_class, attempts, truncated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		o.ID,
		o.Timestamp,
		o.WorkflowID,
		o.StepName,
		o.Provider,
		o.Model,
		o.InputTokens,
		o.OutputTokens,
		o.CostUSD,
		o.Duration.Milliseconds(),
		string(o.Status),
		o.ErrorClass,
		o.Attempts,
		o.Truncated,
	)
	if err != nil {
		return fmt.Errorf("insert generation outcome: %w", err)
	}
	return nil
}
