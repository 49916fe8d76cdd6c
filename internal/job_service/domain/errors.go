package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound indicates the referenced job does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrMissingEvidence indicates a confirmation was attempted before
	// dispatch evidence was recorded. This is an ordering violation by the
	// caller and is always rejected.
	ErrMissingEvidence = errors.New("cannot confirm without dispatch evidence")
	// ErrMissingMerchantTarget indicates a transition into dispatched was
	// attempted without a merchant target.
	ErrMissingMerchantTarget = errors.New("merchant target required before dispatch")
)

// InvalidStatusError is returned when a raw status value cannot be
// canonicalized.
type InvalidStatusError struct {
	Raw string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid job status %q", e.Raw)
}

// InvalidTransitionError is returned when a requested status change is not an
// edge of the transition graph. Non-retryable.
type InvalidTransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// CASConflictError is returned when the compare-and-swap precondition failed
// because a concurrent actor mutated the job first. Retryable after
// re-reading the job.
type CASConflictError struct {
	JobID    uuid.UUID
	Expected JobStatus
	Actual   JobStatus
}

func (e *CASConflictError) Error() string {
	return fmt.Sprintf("status conflict on job %s: expected %s, found %s", e.JobID, e.Expected, e.Actual)
}

// ForbiddenError is returned when the caller does not own the job.
type ForbiddenError struct {
	JobID  uuid.UUID
	UserID uuid.UUID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s is not the owner of job %s", e.UserID, e.JobID)
}

// DispatchSendError wraps a failed external send. The job is left in its
// prior status and the dispatch is safe to retry.
type DispatchSendError struct {
	JobID uuid.UUID
	Err   error
}

func (e *DispatchSendError) Error() string {
	return fmt.Sprintf("external send failed for job %s: %v", e.JobID, e.Err)
}

func (e *DispatchSendError) Unwrap() error { return e.Err }

// EvidenceConflictError is returned when evidence with a different provider
// message id is already attached to the job.
type EvidenceConflictError struct {
	JobID      uuid.UUID
	ExistingID string
	IncomingID string
}

func (e *EvidenceConflictError) Error() string {
	return fmt.Sprintf("job %s already has evidence %s, refusing to overwrite with %s", e.JobID, e.ExistingID, e.IncomingID)
}
