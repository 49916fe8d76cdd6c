package domain

import (
	"context"

	"github.com/google/uuid"
)

// CASParams describes one guarded status transition. When Target is non-nil
// it is attached in the same transaction as the status write, which is how
// the merchant target becomes visible no later than the dispatched state.
type CASParams struct {
	JobID        uuid.UUID
	ExpectedFrom JobStatus
	To           JobStatus
	Target       *MerchantTarget
	TraceID      string
}

// CASResult reports the outcome of a compare-and-swap transition.
// WasIdempotent is true when the job already carried the target status and no
// write was performed.
type CASResult struct {
	PreviousStatus JobStatus
	NewStatus      JobStatus
	WasIdempotent  bool
}

// JobRepository is the transactional port for job state. Implementations
// must provide read-modify-write isolation per job: of two concurrent
// CASTransition calls with the same precondition, exactly one commits.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetByClientRequestID(ctx context.Context, ownerID uuid.UUID, clientRequestID string) (*Job, error)

	// CASTransition performs the guarded transition described by p inside a
	// single transaction. It returns ErrJobNotFound, *CASConflictError, or a
	// CASResult. Re-applying the already-current status is a successful no-op.
	CASTransition(ctx context.Context, p CASParams) (*CASResult, error)

	// AttachDispatchEvidence durably stores evidence before confirmation may
	// proceed. Attaching the same provider message id twice is a no-op
	// (attached=false); a different id fails with *EvidenceConflictError.
	AttachDispatchEvidence(ctx context.Context, jobID uuid.UUID, ev DispatchEvidence) (attached bool, err error)

	ListAuditEvents(ctx context.Context, jobID uuid.UUID) ([]AuditEvent, error)
}

// JobFinder locates jobs by merchant address, used to correlate inbound
// merchant replies back to the job they answer.
type JobFinder interface {
	// FindActiveByMerchantAddress returns the most recently updated job in
	// dispatched or confirmed targeting the address, or ErrJobNotFound.
	FindActiveByMerchantAddress(ctx context.Context, address string) (*Job, error)
}
