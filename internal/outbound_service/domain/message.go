package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel is the transport an outbound message is sent over. Only SMS is
// wired today; the channel is part of the idempotency key so additional
// channels never collide.
type Channel string

const ChannelSMS Channel = "sms"

// DeliveryStatus tracks an outbound message from creation through the
// provider's delivery callbacks.
type DeliveryStatus string

const (
	DeliveryStatusPending     DeliveryStatus = "pending"
	DeliveryStatusSending     DeliveryStatus = "sending"
	DeliveryStatusSent        DeliveryStatus = "sent"
	DeliveryStatusDelivered   DeliveryStatus = "delivered"
	DeliveryStatusUndelivered DeliveryStatus = "undelivered"
	DeliveryStatusFailed      DeliveryStatus = "failed"
)

// providerStatusMap translates the provider's callback status strings.
// Anything unrecognized maps to pending rather than failing the callback.
var providerStatusMap = map[string]DeliveryStatus{
	"queued":      DeliveryStatusPending,
	"accepted":    DeliveryStatusPending,
	"sending":     DeliveryStatusSending,
	"sent":        DeliveryStatusSent,
	"delivered":   DeliveryStatusDelivered,
	"undelivered": DeliveryStatusUndelivered,
	"failed":      DeliveryStatusFailed,
}

// MapProviderStatus converts a raw provider status string to the canonical
// enum, defaulting to pending for unknown values.
func MapProviderStatus(raw string) DeliveryStatus {
	if status, ok := providerStatusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return DeliveryStatusPending
}

// OutboundMessage is one message accepted for sending. The idempotency key
// bounds duplicate sends; the provider message id arrives only after a
// successful send and is the sole lookup key for delivery callbacks.
type OutboundMessage struct {
	ID                uuid.UUID
	Channel           Channel
	To                string
	Body              string
	TemplateKey       string
	CorrelationID     string
	IdempotencyKey    string
	Status            DeliveryStatus
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
	SentAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOutboundMessage builds a pending message carrying its idempotency key.
func NewOutboundMessage(channel Channel, to, body, templateKey, correlationID, idempotencyKey string) *OutboundMessage {
	now := time.Now().UTC()
	return &OutboundMessage{
		ID:             uuid.New(),
		Channel:        channel,
		To:             to,
		Body:           body,
		TemplateKey:    templateKey,
		CorrelationID:  correlationID,
		IdempotencyKey: idempotencyKey,
		Status:         DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
