package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// PgxIface is the subset of *pgxpool.Pool the repository needs. Declared as
// an interface so tests can substitute a pgxmock pool.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgJobRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgJobRepository(db PgxIface, logger *slog.Logger) *PgJobRepository {
	return &PgJobRepository{db: db, logger: logger.With("component", "job_repository")}
}

const jobColumns = `id, owner_user_id, action_type, action_data, status, previous_status,
	       merchant_name, merchant_address,
	       evidence_provider_message_id, evidence_target, evidence_body, evidence_sent_at,
	       client_request_id, trace_id, created_at, updated_at`

func (r *PgJobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, owner_user_id, action_type, action_data, status,
			client_request_id, trace_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var clientRequestID *string
	if job.ClientRequestID != "" {
		clientRequestID = &job.ClientRequestID
	}
	_, err := r.db.Exec(ctx, query,
		job.ID, job.OwnerUserID, job.ActionType, job.ActionData, job.Status,
		clientRequestID, job.TraceID, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to insert job", "error", err, "job_id", job.ID)
		return err
	}
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return r.scanJob(ctx, r.db.QueryRow(ctx, query, id))
}

func (r *PgJobRepository) GetByClientRequestID(ctx context.Context, ownerID uuid.UUID, clientRequestID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_user_id = $1 AND client_request_id = $2`
	return r.scanJob(ctx, r.db.QueryRow(ctx, query, ownerID, clientRequestID))
}

func (r *PgJobRepository) scanJob(ctx context.Context, row pgx.Row) (*domain.Job, error) {
	job := &domain.Job{}
	var (
		previousStatus, merchantName, merchantAddress         *string
		evidenceMsgID, evidenceTarget, evidenceBody           *string
		evidenceSentAt                                        *time.Time
		clientRequestID, traceID                              *string
	)
	err := row.Scan(
		&job.ID, &job.OwnerUserID, &job.ActionType, &job.ActionData, &job.Status, &previousStatus,
		&merchantName, &merchantAddress,
		&evidenceMsgID, &evidenceTarget, &evidenceBody, &evidenceSentAt,
		&clientRequestID, &traceID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		r.logger.ErrorContext(ctx, "failed to scan job row", "error", err)
		return nil, err
	}
	if previousStatus != nil {
		job.PreviousStatus = domain.JobStatus(*previousStatus)
	}
	if merchantAddress != nil {
		name := ""
		if merchantName != nil {
			name = *merchantName
		}
		job.MerchantTarget = &domain.MerchantTarget{Name: name, Address: *merchantAddress}
	}
	if evidenceMsgID != nil {
		ev := &domain.DispatchEvidence{ProviderMessageID: *evidenceMsgID}
		if evidenceTarget != nil {
			ev.Target = *evidenceTarget
		}
		if evidenceBody != nil {
			ev.Body = *evidenceBody
		}
		if evidenceSentAt != nil {
			ev.SentAt = *evidenceSentAt
		}
		job.Evidence = ev
	}
	if clientRequestID != nil {
		job.ClientRequestID = *clientRequestID
	}
	if traceID != nil {
		job.TraceID = *traceID
	}
	return job, nil
}

// CASTransition performs the guarded status transition inside one
// transaction. The SELECT ... FOR UPDATE row lock totally orders all
// status-mutating operations on a single job: of two concurrent racers with
// the same precondition, exactly one observes it true and commits.
func (r *PgJobRepository) CASTransition(ctx context.Context, p domain.CASParams) (*domain.CASResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var currentStr string
	var merchantAddress *string
	err = tx.QueryRow(ctx, `SELECT status, merchant_address FROM jobs WHERE id = $1 FOR UPDATE`, p.JobID).
		Scan(&currentStr, &merchantAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	current := domain.JobStatus(currentStr)

	// Re-applying the target status is a successful no-op, which makes
	// retried confirmations safe.
	if current == p.To {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &domain.CASResult{PreviousStatus: current, NewStatus: current, WasIdempotent: true}, nil
	}

	if current != p.ExpectedFrom {
		// A stale precondition on an edge the graph forbids outright is an
		// invalid transition (non-retryable); otherwise it is a retryable
		// conflict caused by a concurrent mutation.
		if !domain.IsValidTransition(current, p.To) {
			return nil, &domain.InvalidTransitionError{From: current, To: p.To}
		}
		return nil, &domain.CASConflictError{JobID: p.JobID, Expected: p.ExpectedFrom, Actual: current}
	}

	if err := domain.ValidateTransition(current, p.To); err != nil {
		return nil, err
	}

	if p.To == domain.StatusDispatched && p.Target == nil && merchantAddress == nil {
		return nil, domain.ErrMissingMerchantTarget
	}

	now := time.Now().UTC()
	if p.Target != nil {
		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET status = $2, previous_status = $3, merchant_name = $4, merchant_address = $5,
			    trace_id = $6, updated_at = $7
			WHERE id = $1`,
			p.JobID, p.To, current, p.Target.Name, p.Target.Address, p.TraceID, now,
		)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET status = $2, previous_status = $3, trace_id = $4, updated_at = $5
			WHERE id = $1`,
			p.JobID, p.To, current, p.TraceID, now,
		)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to write status transition", "error", err, "job_id", p.JobID)
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO job_audit_events (id, job_id, from_status, to_status, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), p.JobID, current, p.To, p.TraceID, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to append audit event", "error", err, "job_id", p.JobID)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.CASResult{PreviousStatus: current, NewStatus: p.To, WasIdempotent: false}, nil
}

// AttachDispatchEvidence stores send evidence exactly once. A second call
// with the same provider message id is a no-op; a different id is refused so
// evidence can never be silently replaced.
func (r *PgJobRepository) AttachDispatchEvidence(ctx context.Context, jobID uuid.UUID, ev domain.DispatchEvidence) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var existingID *string
	err = tx.QueryRow(ctx, `SELECT evidence_provider_message_id FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
		Scan(&existingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, err
	}

	if existingID != nil {
		if *existingID == ev.ProviderMessageID {
			if err := tx.Commit(ctx); err != nil {
				return false, err
			}
			return false, nil
		}
		return false, &domain.EvidenceConflictError{JobID: jobID, ExistingID: *existingID, IncomingID: ev.ProviderMessageID}
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET evidence_provider_message_id = $2, evidence_target = $3, evidence_body = $4,
		    evidence_sent_at = $5, updated_at = $6
		WHERE id = $1`,
		jobID, ev.ProviderMessageID, ev.Target, ev.Body, ev.SentAt, time.Now().UTC(),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to attach dispatch evidence", "error", err, "job_id", jobID)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FindActiveByMerchantAddress correlates an inbound merchant reply with the
// most recent in-flight job dispatched to that address.
func (r *PgJobRepository) FindActiveByMerchantAddress(ctx context.Context, address string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE merchant_address = $1 AND status IN ('dispatched', 'confirmed')
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.scanJob(ctx, r.db.QueryRow(ctx, query, address))
}

func (r *PgJobRepository) ListAuditEvents(ctx context.Context, jobID uuid.UUID) ([]domain.AuditEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, job_id, from_status, to_status, trace_id, created_at
		FROM job_audit_events WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var traceID *string
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.FromStatus, &ev.ToStatus, &traceID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if traceID != nil {
			ev.TraceID = *traceID
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
