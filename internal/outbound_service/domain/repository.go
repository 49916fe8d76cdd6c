package domain

import (
	"context"

	"github.com/google/uuid"
)

// OutboundRepository persists outbound messages and their idempotency
// reservations.
type OutboundRepository interface {
	// ReserveAndCreate reserves the message's idempotency key and inserts
	// the pending record in one transaction. When the key is already
	// reserved it returns (false, existing) without writing anything.
	ReserveAndCreate(ctx context.Context, msg *OutboundMessage) (bool, *OutboundMessage, error)

	GetByID(ctx context.Context, id uuid.UUID) (*OutboundMessage, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*OutboundMessage, error)

	// MarkSent records a successful provider submission.
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error

	// MarkFailed records a provider send failure.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error

	// UpdateDeliveryStatus applies a delivery callback, looked up by
	// provider message id only: the provider assigns that id after send, so
	// callbacks can never race the idempotency reservation.
	UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status DeliveryStatus, errorCode, errorMessage string) error
}
