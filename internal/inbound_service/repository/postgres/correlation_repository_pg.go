package postgres

import (
	"context"
	"log/slog"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
)

type PgCorrelationRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgCorrelationRepository(db PgxIface, logger *slog.Logger) *PgCorrelationRepository {
	return &PgCorrelationRepository{db: db, logger: logger.With("component", "correlation_repository")}
}

// Upsert records which entity a message acted on. Reprocessing the same
// message overwrites the prior correlation rather than duplicating it.
func (r *PgCorrelationRepository) Upsert(ctx context.Context, c domain.MessageCorrelation) error {
	var threadID *string
	if c.ThreadID != "" {
		threadID = &c.ThreadID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_correlations (message_id, route, thread_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO UPDATE
		SET route = EXCLUDED.route, thread_id = EXCLUDED.thread_id, updated_at = EXCLUDED.updated_at`,
		c.MessageID, c.Route, threadID, c.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to upsert message correlation", "error", err, "message_id", c.MessageID)
	}
	return err
}
