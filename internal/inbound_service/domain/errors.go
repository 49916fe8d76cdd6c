package domain

import "errors"

var (
	// ErrReceiptNotFound is returned when no receipt exists for a message id.
	ErrReceiptNotFound = errors.New("inbound receipt not found")

	// ErrEmptyMessageID rejects payloads without a provider message id; the
	// id is the idempotency key, so a receipt cannot be created without it.
	ErrEmptyMessageID = errors.New("inbound payload has no message id")

	// ErrEmptyContent rejects payloads whose text, media, and location are
	// all absent.
	ErrEmptyContent = errors.New("inbound payload has no content")
)
