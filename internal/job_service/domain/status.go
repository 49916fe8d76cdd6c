package domain

import "strings"

// JobStatus represents the lifecycle state of a dispatch job.
type JobStatus string

const (
	StatusCollecting    JobStatus = "collecting"
	StatusConfirming    JobStatus = "confirming"
	StatusDispatched    JobStatus = "dispatched"
	StatusConfirmed     JobStatus = "confirmed"
	StatusCompleted     JobStatus = "completed"
	StatusCancelled     JobStatus = "cancelled"
	StatusFailed        JobStatus = "failed"
	StatusTimeoutReview JobStatus = "timeout-review"
)

// AllStatuses lists every known job status.
var AllStatuses = []JobStatus{
	StatusCollecting,
	StatusConfirming,
	StatusDispatched,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusFailed,
	StatusTimeoutReview,
}

// allowedTransitions is the fixed transition graph. Terminal states
// (cancelled, completed, failed) have no outgoing edges. The only
// status regression allowed anywhere is timeout-review -> collecting.
var allowedTransitions = map[JobStatus][]JobStatus{
	StatusCollecting:    {StatusConfirming, StatusCancelled, StatusTimeoutReview},
	StatusConfirming:    {StatusDispatched, StatusCancelled, StatusTimeoutReview},
	StatusDispatched:    {StatusConfirmed, StatusCancelled, StatusTimeoutReview},
	StatusConfirmed:     {StatusCompleted, StatusCancelled},
	StatusTimeoutReview: {StatusCollecting, StatusCancelled},
	StatusCancelled:     {},
	StatusCompleted:     {},
	StatusFailed:        {},
}

// CanonicalStatus normalizes a raw status value. Inputs are trimmed and
// lower-cased before comparison; unknown values are rejected, never coerced.
func CanonicalStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := allowedTransitions[s]; !ok {
		return "", &InvalidStatusError{Raw: raw}
	}
	return s, nil
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s JobStatus) IsTerminal() bool {
	edges, ok := allowedTransitions[s]
	return ok && len(edges) == 0
}

// IsValidTransition reports whether from -> to is an edge of the fixed graph.
// Unknown statuses on either side are never valid.
func IsValidTransition(from, to JobStatus) bool {
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	if _, ok := allowedTransitions[to]; !ok {
		return false
	}
	for _, allowed := range edges {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransitionError when from -> to is not
// in the transition graph.
func ValidateTransition(from, to JobStatus) error {
	if !IsValidTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
