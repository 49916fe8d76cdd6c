package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// SendFunc performs the external merchant send and returns provider evidence.
// It may be invoked more than once across retries; downstream idempotency
// (the outbound sender's idempotency key) absorbs the duplication.
type SendFunc func(ctx context.Context) (*domain.DispatchEvidence, error)

// DispatchResult reports the outcome of a dispatch-and-confirm run.
type DispatchResult struct {
	ProviderMessageID string
	WasIdempotent     bool
}

// DispatchCoordinator orders the dispatch protocol so that confirmation can
// never happen without durable proof of the external send:
//
//  1. send externally (no writes on failure, job stays retryable)
//  2. persist evidence, committed before any confirmation write
//  3. confirm via CAS dispatched -> confirmed
//
// A crash between 1 and 2 leaves the job unconfirmed and retryable; a crash
// between 2 and 3 leaves evidence in place so a retry of step 3 succeeds.
type DispatchCoordinator struct {
	repo   domain.JobRepository
	guard  *StateGuard
	logger *slog.Logger
}

func NewDispatchCoordinator(repo domain.JobRepository, guard *StateGuard, logger *slog.Logger) *DispatchCoordinator {
	return &DispatchCoordinator{repo: repo, guard: guard, logger: logger.With("component", "dispatch_coordinator")}
}

// DispatchAndConfirm runs the full protocol for a job already in dispatched.
func (c *DispatchCoordinator) DispatchAndConfirm(ctx context.Context, jobID uuid.UUID, traceID string, sendFn SendFunc) (*DispatchResult, error) {
	evidence, err := sendFn(ctx)
	if err != nil {
		dispatchesCounter.WithLabelValues("send_failed").Inc()
		c.logger.ErrorContext(ctx, "external send failed, job left in prior status",
			"error", err, "job_id", jobID, "trace_id", traceID)
		return nil, &domain.DispatchSendError{JobID: jobID, Err: err}
	}

	attached, err := c.repo.AttachDispatchEvidence(ctx, jobID, *evidence)
	if err != nil {
		dispatchesCounter.WithLabelValues("error").Inc()
		return nil, err
	}
	if !attached {
		c.logger.InfoContext(ctx, "dispatch evidence already recorded",
			"job_id", jobID, "provider_message_id", evidence.ProviderMessageID)
	}

	res, err := c.ConfirmWithEvidence(ctx, jobID, traceID)
	if err != nil {
		dispatchesCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	if res.WasIdempotent && !attached {
		dispatchesCounter.WithLabelValues("idempotent").Inc()
	} else {
		dispatchesCounter.WithLabelValues("confirmed").Inc()
	}
	return &DispatchResult{
		ProviderMessageID: evidence.ProviderMessageID,
		WasIdempotent:     res.WasIdempotent && !attached,
	}, nil
}

// ConfirmWithEvidence re-reads the job and confirms it only when evidence is
// present. Absent evidence is an ordering violation by the caller and is
// always rejected; it never causes a status write.
func (c *DispatchCoordinator) ConfirmWithEvidence(ctx context.Context, jobID uuid.UUID, traceID string) (*domain.CASResult, error) {
	job, err := c.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Evidence == nil || job.Evidence.ProviderMessageID == "" {
		return nil, domain.ErrMissingEvidence
	}
	return c.guard.CASTransition(ctx, domain.CASParams{
		JobID:        jobID,
		ExpectedFrom: domain.StatusDispatched,
		To:           domain.StatusConfirmed,
		TraceID:      traceID,
	})
}
