package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
)

// PgxIface is the subset of *pgxpool.Pool the repository needs. Declared as
// an interface so tests can substitute a pgxmock pool.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgReceiptRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgReceiptRepository(db PgxIface, logger *slog.Logger) *PgReceiptRepository {
	return &PgReceiptRepository{db: db, logger: logger.With("component", "receipt_repository")}
}

const receiptColumns = `message_id, from_addr, to_addr, body, media_urls, latitude, longitude,
		       status, attempts, last_error, route, thread_id, created_at, updated_at, processed_at`

// CreateIdempotent inserts the receipt, absorbing duplicate webhook delivery
// through the primary key on message_id. The existing row is returned when
// the insert is a no-op.
func (r *PgReceiptRepository) CreateIdempotent(ctx context.Context, receipt *domain.InboundReceipt) (bool, *domain.InboundReceipt, error) {
	query := `
		INSERT INTO inbound_receipts (
			message_id, from_addr, to_addr, body, media_urls, latitude, longitude,
			status, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (message_id) DO NOTHING
	`
	var latitude, longitude *float64
	if receipt.Location != nil {
		latitude = &receipt.Location.Latitude
		longitude = &receipt.Location.Longitude
	}
	tag, err := r.db.Exec(ctx, query,
		receipt.MessageID, receipt.From, receipt.To, receipt.Text, receipt.MediaURLs,
		latitude, longitude, receipt.Status, receipt.Attempts, receipt.CreatedAt, receipt.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to insert inbound receipt", "error", err, "message_id", receipt.MessageID)
		return false, nil, err
	}
	if tag.RowsAffected() == 1 {
		return true, receipt, nil
	}

	existing, err := r.GetByMessageID(ctx, receipt.MessageID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *PgReceiptRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.InboundReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM inbound_receipts WHERE message_id = $1`
	return r.scanReceipt(ctx, r.db.QueryRow(ctx, query, messageID))
}

func (r *PgReceiptRepository) scanReceipt(ctx context.Context, row pgx.Row) (*domain.InboundReceipt, error) {
	receipt := &domain.InboundReceipt{}
	var (
		latitude, longitude        *float64
		lastError, route, threadID *string
	)
	err := row.Scan(
		&receipt.MessageID, &receipt.From, &receipt.To, &receipt.Text, &receipt.MediaURLs,
		&latitude, &longitude,
		&receipt.Status, &receipt.Attempts, &lastError, &route, &threadID,
		&receipt.CreatedAt, &receipt.UpdatedAt, &receipt.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReceiptNotFound
		}
		r.logger.ErrorContext(ctx, "failed to scan receipt row", "error", err)
		return nil, err
	}
	if latitude != nil && longitude != nil {
		receipt.Location = &domain.Location{Latitude: *latitude, Longitude: *longitude}
	}
	if lastError != nil {
		receipt.LastError = *lastError
	}
	if route != nil {
		receipt.Route = domain.Route(*route)
	}
	if threadID != nil {
		receipt.ThreadID = *threadID
	}
	return receipt, nil
}

// ClaimProcessing takes the receipt row lock and moves queued or
// stale-processing receipts into processing. Redelivered tasks for receipts
// that are processed, terminally failed, or freshly claimed elsewhere are
// absorbed by returning claimed=false.
func (r *PgReceiptRepository) ClaimProcessing(ctx context.Context, messageID string, staleAfter time.Duration) (bool, *domain.InboundReceipt, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + receiptColumns + ` FROM inbound_receipts WHERE message_id = $1 FOR UPDATE`
	receipt, err := r.scanReceipt(ctx, tx.QueryRow(ctx, query, messageID))
	if err != nil {
		return false, nil, err
	}

	claimable := receipt.Status == domain.ReceiptStatusQueued ||
		(receipt.Status == domain.ReceiptStatusProcessing && time.Since(receipt.UpdatedAt) > staleAfter)
	if !claimable {
		if err := tx.Commit(ctx); err != nil {
			return false, nil, err
		}
		return false, receipt, nil
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE inbound_receipts
		SET status = $2, attempts = attempts + 1, updated_at = $3
		WHERE message_id = $1`,
		messageID, domain.ReceiptStatusProcessing, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to claim receipt", "error", err, "message_id", messageID)
		return false, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}

	receipt.Status = domain.ReceiptStatusProcessing
	receipt.Attempts++
	receipt.UpdatedAt = now
	return true, receipt, nil
}

func (r *PgReceiptRepository) MarkProcessed(ctx context.Context, messageID string, route domain.Route, threadID string) error {
	now := time.Now().UTC()
	var thread *string
	if threadID != "" {
		thread = &threadID
	}
	_, err := r.db.Exec(ctx, `
		UPDATE inbound_receipts
		SET status = $2, route = $3, thread_id = $4, last_error = NULL, processed_at = $5, updated_at = $5
		WHERE message_id = $1`,
		messageID, domain.ReceiptStatusProcessed, route, thread, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark receipt processed", "error", err, "message_id", messageID)
	}
	return err
}

func (r *PgReceiptRepository) Requeue(ctx context.Context, messageID, lastError string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE inbound_receipts
		SET status = $2, last_error = $3, updated_at = $4
		WHERE message_id = $1`,
		messageID, domain.ReceiptStatusQueued, lastError, time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to requeue receipt", "error", err, "message_id", messageID)
	}
	return err
}

func (r *PgReceiptRepository) MarkFailed(ctx context.Context, messageID, lastError string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE inbound_receipts
		SET status = $2, last_error = $3, updated_at = $4
		WHERE message_id = $1`,
		messageID, domain.ReceiptStatusFailed, lastError, time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark receipt failed", "error", err, "message_id", messageID)
	}
	return err
}

func (r *PgReceiptRepository) ListStuckQueued(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.db.Query(ctx, `
		SELECT message_id FROM inbound_receipts
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		domain.ReceiptStatusQueued, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
