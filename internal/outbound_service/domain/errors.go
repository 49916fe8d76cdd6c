package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageNotFound is returned when no outbound message matches the
	// lookup key.
	ErrMessageNotFound = errors.New("outbound message not found")

	// ErrEmptyRecipient rejects send input without a destination address.
	ErrEmptyRecipient = errors.New("outbound message has no recipient")

	// ErrEmptyBody rejects send input without content.
	ErrEmptyBody = errors.New("outbound message has no body")
)

// SendFailedError wraps a provider send failure. The message record is left
// in failed with the same error; re-invoking Send with the same idempotency
// key returns that record instead of retrying automatically.
type SendFailedError struct {
	MessageID string
	Err       error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send of outbound message %s failed: %v", e.MessageID, e.Err)
}

func (e *SendFailedError) Unwrap() error { return e.Err }
