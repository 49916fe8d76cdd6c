package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// MerchantResolver selects the external party a job should be dispatched to.
type MerchantResolver interface {
	Resolve(ctx context.Context, job *domain.Job) (domain.MerchantTarget, error)
}

// DispatchSender performs the external merchant send. The outbound message
// sender implements this behind its own idempotency key, so re-invocation
// within the same hour window does not duplicate the send.
type DispatchSender interface {
	SendDispatch(ctx context.Context, job *domain.Job, target domain.MerchantTarget, body string) (*domain.DispatchEvidence, error)
}

// JobService orchestrates the job lifecycle on top of the state guard and the
// dispatch coordinator.
type JobService struct {
	repo        domain.JobRepository
	guard       *StateGuard
	coordinator *DispatchCoordinator
	resolver    MerchantResolver
	sender      DispatchSender
	logger      *slog.Logger
}

func NewJobService(
	repo domain.JobRepository,
	guard *StateGuard,
	coordinator *DispatchCoordinator,
	resolver MerchantResolver,
	sender DispatchSender,
	logger *slog.Logger,
) *JobService {
	return &JobService{
		repo:        repo,
		guard:       guard,
		coordinator: coordinator,
		resolver:    resolver,
		sender:      sender,
		logger:      logger.With("component", "job_service"),
	}
}

// Create stores a new job in collecting. When the caller supplies a client
// request id, a repeated create with the same id returns the existing job.
func (s *JobService) Create(ctx context.Context, ownerID uuid.UUID, actionType domain.ActionType, actionData json.RawMessage, clientRequestID, traceID string) (*domain.Job, bool, error) {
	if !domain.KnownActionType(actionType) {
		return nil, false, fmt.Errorf("unknown action type %q", actionType)
	}
	if len(actionData) == 0 {
		actionData = json.RawMessage("{}")
	}

	if clientRequestID != "" {
		existing, err := s.repo.GetByClientRequestID(ctx, ownerID, clientRequestID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			return nil, false, err
		}
	}

	job := domain.NewJob(ownerID, actionType, actionData, clientRequestID, traceID)
	if err := s.repo.Create(ctx, job); err != nil {
		// A concurrent create with the same client request id may have won
		// the unique constraint race; surface the winner instead.
		if clientRequestID != "" {
			if existing, lookupErr := s.repo.GetByClientRequestID(ctx, ownerID, clientRequestID); lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID, "owner_user_id", ownerID, "action_type", actionType, "trace_id", traceID)
	return job, true, nil
}

// Get returns the job to its owner only.
func (s *JobService) Get(ctx context.Context, jobID, callerID uuid.UUID) (*domain.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerUserID != callerID {
		return nil, &domain.ForbiddenError{JobID: jobID, UserID: callerID}
	}
	return job, nil
}

// Confirm moves an owned job collecting -> confirming.
func (s *JobService) Confirm(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	if _, err := s.Get(ctx, jobID, callerID); err != nil {
		return nil, err
	}
	return s.guard.CASTransition(ctx, domain.CASParams{
		JobID:        jobID,
		ExpectedFrom: domain.StatusCollecting,
		To:           domain.StatusConfirming,
		TraceID:      traceID,
	})
}

// Cancel moves an owned job into cancelled from any non-terminal state.
func (s *JobService) Cancel(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	job, err := s.Get(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}
	return s.guard.CASTransition(ctx, domain.CASParams{
		JobID:        jobID,
		ExpectedFrom: job.Status,
		To:           domain.StatusCancelled,
		TraceID:      traceID,
	})
}

// Reopen recovers a job parked in timeout-review back to collecting.
func (s *JobService) Reopen(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	if _, err := s.Get(ctx, jobID, callerID); err != nil {
		return nil, err
	}
	return s.guard.CASTransition(ctx, domain.CASParams{
		JobID:        jobID,
		ExpectedFrom: domain.StatusTimeoutReview,
		To:           domain.StatusCollecting,
		TraceID:      traceID,
	})
}

// Dispatch runs the full dispatch protocol for an owned job: resolve the
// merchant, CAS confirming -> dispatched with the target attached, then send
// and confirm through the coordinator. Re-invoking after a confirmed dispatch
// with recorded evidence is a no-op returning the prior result.
func (s *JobService) Dispatch(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*DispatchResult, error) {
	job, err := s.Get(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(dispatchDurationHist.WithLabelValues(string(job.ActionType)))
	defer timer.ObserveDuration()

	if job.Status == domain.StatusConfirmed && job.Evidence != nil {
		return &DispatchResult{ProviderMessageID: job.Evidence.ProviderMessageID, WasIdempotent: true}, nil
	}

	var target domain.MerchantTarget
	switch job.Status {
	case domain.StatusConfirming:
		target, err = s.resolver.Resolve(ctx, job)
		if err != nil {
			return nil, err
		}
		if _, err := s.guard.CASTransition(ctx, domain.CASParams{
			JobID:        jobID,
			ExpectedFrom: domain.StatusConfirming,
			To:           domain.StatusDispatched,
			Target:       &target,
			TraceID:      traceID,
		}); err != nil {
			return nil, err
		}
	case domain.StatusDispatched:
		// Retry path: a previous attempt crashed after the dispatched CAS.
		if job.MerchantTarget == nil {
			return nil, domain.ErrMissingMerchantTarget
		}
		target = *job.MerchantTarget
	default:
		return nil, &domain.InvalidTransitionError{From: job.Status, To: domain.StatusDispatched}
	}

	body := renderDispatchBody(job, target)
	return s.coordinator.DispatchAndConfirm(ctx, jobID, traceID, func(ctx context.Context) (*domain.DispatchEvidence, error) {
		return s.sender.SendDispatch(ctx, job, target, body)
	})
}

// CompleteFromMerchantReply moves a confirmed job to completed. Invoked by
// the inbound pipeline when the merchant acknowledges the request.
func (s *JobService) CompleteFromMerchantReply(ctx context.Context, jobID uuid.UUID, traceID string) (*domain.CASResult, error) {
	return s.guard.CASTransition(ctx, domain.CASParams{
		JobID:        jobID,
		ExpectedFrom: domain.StatusConfirmed,
		To:           domain.StatusCompleted,
		TraceID:      traceID,
	})
}

// FindActiveByMerchantAddress returns the most recent dispatched or confirmed
// job targeting the given merchant address, for correlating inbound replies.
func (s *JobService) FindActiveByMerchantAddress(ctx context.Context, address string) (*domain.Job, error) {
	finder, ok := s.repo.(domain.JobFinder)
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return finder.FindActiveByMerchantAddress(ctx, address)
}

// renderDispatchBody produces the message sent to the merchant. The body is
// part of the dispatch evidence, so it is rendered once per dispatch attempt
// from the same inputs.
func renderDispatchBody(job *domain.Job, target domain.MerchantTarget) string {
	var summary struct {
		Summary string `json:"summary"`
	}
	_ = json.Unmarshal(job.ActionData, &summary)

	label := actionLabel(job.ActionType)
	if summary.Summary != "" {
		return fmt.Sprintf("%s request %s: %s. Reply YES to accept.", label, shortID(job.ID), summary.Summary)
	}
	return fmt.Sprintf("%s request %s received %s. Reply YES to accept.",
		label, shortID(job.ID), job.CreatedAt.Format(time.RFC822))
}

func actionLabel(t domain.ActionType) string {
	switch t {
	case domain.ActionTypeTaxiDispatch:
		return "Taxi"
	case domain.ActionTypeFoodOrder:
		return "Food order"
	case domain.ActionTypeGoodsOrder:
		return "Goods order"
	case domain.ActionTypeBooking:
		return "Booking"
	default:
		return "Service"
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
