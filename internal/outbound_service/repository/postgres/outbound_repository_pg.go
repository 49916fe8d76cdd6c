package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orderpilot/dispatch_services/internal/outbound_service/domain"
)

// PgxIface is the subset of *pgxpool.Pool the repository needs. Declared as
// an interface so tests can substitute a pgxmock pool.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgOutboundRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgOutboundRepository(db PgxIface, logger *slog.Logger) *PgOutboundRepository {
	return &PgOutboundRepository{db: db, logger: logger.With("component", "outbound_repository")}
}

const messageColumns = `id, channel, to_addr, body, template_key, correlation_id, idempotency_key,
		       status, provider_message_id, error_code, error_message, sent_at, created_at, updated_at`

// ReserveAndCreate inserts the idempotency reservation and the pending
// message in one transaction. A key conflict aborts the insert and returns
// the message the reservation points at.
func (r *PgOutboundRepository) ReserveAndCreate(ctx context.Context, msg *domain.OutboundMessage) (bool, *domain.OutboundMessage, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO outbound_idempotency (idempotency_key, message_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		msg.IdempotencyKey, msg.ID, msg.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to reserve idempotency key", "error", err, "message_id", msg.ID)
		return false, nil, err
	}

	if tag.RowsAffected() == 0 {
		var existingID uuid.UUID
		err = tx.QueryRow(ctx,
			`SELECT message_id FROM outbound_idempotency WHERE idempotency_key = $1`,
			msg.IdempotencyKey,
		).Scan(&existingID)
		if err != nil {
			return false, nil, err
		}
		existing, err := r.scanMessage(ctx, tx.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM outbound_messages WHERE id = $1`, existingID))
		if err != nil {
			return false, nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, nil, err
		}
		return false, existing, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbound_messages (
			id, channel, to_addr, body, template_key, correlation_id, idempotency_key,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.Channel, msg.To, msg.Body, nullable(msg.TemplateKey), nullable(msg.CorrelationID),
		msg.IdempotencyKey, msg.Status, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to insert outbound message", "error", err, "message_id", msg.ID)
		return false, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return true, msg, nil
}

func (r *PgOutboundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboundMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM outbound_messages WHERE id = $1`
	return r.scanMessage(ctx, r.db.QueryRow(ctx, query, id))
}

func (r *PgOutboundRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.OutboundMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM outbound_messages WHERE provider_message_id = $1`
	return r.scanMessage(ctx, r.db.QueryRow(ctx, query, providerMessageID))
}

func (r *PgOutboundRepository) scanMessage(ctx context.Context, row pgx.Row) (*domain.OutboundMessage, error) {
	msg := &domain.OutboundMessage{}
	var (
		templateKey, correlationID, providerMessageID *string
		errorCode, errorMessage                       *string
	)
	err := row.Scan(
		&msg.ID, &msg.Channel, &msg.To, &msg.Body, &templateKey, &correlationID, &msg.IdempotencyKey,
		&msg.Status, &providerMessageID, &errorCode, &errorMessage, &msg.SentAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		r.logger.ErrorContext(ctx, "failed to scan outbound message row", "error", err)
		return nil, err
	}
	if templateKey != nil {
		msg.TemplateKey = *templateKey
	}
	if correlationID != nil {
		msg.CorrelationID = *correlationID
	}
	if providerMessageID != nil {
		msg.ProviderMessageID = *providerMessageID
	}
	if errorCode != nil {
		msg.ErrorCode = *errorCode
	}
	if errorMessage != nil {
		msg.ErrorMessage = *errorMessage
	}
	return msg, nil
}

func (r *PgOutboundRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		UPDATE outbound_messages
		SET status = $2, provider_message_id = $3, sent_at = $4, updated_at = $4
		WHERE id = $1`,
		id, domain.DeliveryStatusSent, providerMessageID, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark message sent", "error", err, "message_id", id)
	}
	return err
}

func (r *PgOutboundRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbound_messages
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1`,
		id, domain.DeliveryStatusFailed, errorMessage, time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark message failed", "error", err, "message_id", id)
	}
	return err
}

func (r *PgOutboundRepository) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status domain.DeliveryStatus, errorCode, errorMessage string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbound_messages
		SET status = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE provider_message_id = $1`,
		providerMessageID, status, nullable(errorCode), nullable(errorMessage), time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update delivery status", "error", err, "provider_message_id", providerMessageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
