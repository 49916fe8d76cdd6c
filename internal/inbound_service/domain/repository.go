package domain

import (
	"context"
	"time"
)

// ReceiptRepository persists inbound receipts. All mutation goes through the
// transactional store; the repository is the only synchronization primitive
// the inbound pipeline relies on.
type ReceiptRepository interface {
	// CreateIdempotent inserts the receipt unless one with the same message
	// id already exists. It returns (true, receipt) on first creation and
	// (false, existing) on a duplicate.
	CreateIdempotent(ctx context.Context, receipt *InboundReceipt) (bool, *InboundReceipt, error)

	GetByMessageID(ctx context.Context, messageID string) (*InboundReceipt, error)

	// ClaimProcessing transitions queued or stale-processing receipts to
	// processing and increments the attempt counter. A receipt already
	// processed, terminally failed, or freshly claimed by another worker is
	// not claimable; the method then returns (false, receipt).
	ClaimProcessing(ctx context.Context, messageID string, staleAfter time.Duration) (bool, *InboundReceipt, error)

	// MarkProcessed finalizes a receipt with its resolved route and thread.
	MarkProcessed(ctx context.Context, messageID string, route Route, threadID string) error

	// Requeue returns a receipt to queued after a retryable handler failure.
	Requeue(ctx context.Context, messageID, lastError string) error

	// MarkFailed parks a receipt in the terminal failed state once the retry
	// budget is exhausted.
	MarkFailed(ctx context.Context, messageID, lastError string) error

	// ListStuckQueued returns message ids of receipts still queued after
	// olderThan, for the sweep to re-enqueue.
	ListStuckQueued(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

// CorrelationRepository upserts message-to-entity correlations.
type CorrelationRepository interface {
	Upsert(ctx context.Context, c MessageCorrelation) error
}
