package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// StateGuard funnels every status mutation through the repository's
// compare-and-swap transaction. No in-process locking exists anywhere in the
// job lifecycle; the store's transactional isolation is the synchronization
// primitive.
type StateGuard struct {
	repo   domain.JobRepository
	logger *slog.Logger
}

func NewStateGuard(repo domain.JobRepository, logger *slog.Logger) *StateGuard {
	return &StateGuard{repo: repo, logger: logger.With("component", "state_guard")}
}

// CASTransition applies one guarded transition and classifies the outcome for
// metrics. Conflict and invalid-transition errors are returned to the caller
// untouched so it can decide whether to retry or surface them.
func (g *StateGuard) CASTransition(ctx context.Context, p domain.CASParams) (*domain.CASResult, error) {
	res, err := g.repo.CASTransition(ctx, p)
	if err != nil {
		var conflict *domain.CASConflictError
		var invalid *domain.InvalidTransitionError
		switch {
		case errors.As(err, &conflict):
			casTransitionsCounter.WithLabelValues(string(p.To), "conflict").Inc()
			g.logger.WarnContext(ctx, "CAS precondition failed",
				"job_id", p.JobID, "expected", conflict.Expected, "actual", conflict.Actual, "trace_id", p.TraceID)
		case errors.As(err, &invalid):
			casTransitionsCounter.WithLabelValues(string(p.To), "invalid").Inc()
		default:
			casTransitionsCounter.WithLabelValues(string(p.To), "error").Inc()
			g.logger.ErrorContext(ctx, "CAS transition failed",
				"error", err, "job_id", p.JobID, "to", p.To, "trace_id", p.TraceID)
		}
		return nil, err
	}

	if res.WasIdempotent {
		casTransitionsCounter.WithLabelValues(string(p.To), "idempotent").Inc()
	} else {
		casTransitionsCounter.WithLabelValues(string(p.To), "applied").Inc()
		g.logger.InfoContext(ctx, "job status transitioned",
			"job_id", p.JobID, "from", res.PreviousStatus, "to", res.NewStatus, "trace_id", p.TraceID)
	}
	return res, nil
}
