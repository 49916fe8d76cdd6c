package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionType classifies what the job asks the merchant to do.
type ActionType string

const (
	ActionTypeTaxiDispatch ActionType = "taxi_dispatch"
	ActionTypeFoodOrder    ActionType = "food_order"
	ActionTypeGoodsOrder   ActionType = "goods_order"
	ActionTypeBooking      ActionType = "booking"
)

// KnownActionType reports whether t is one of the supported action types.
func KnownActionType(t ActionType) bool {
	switch t {
	case ActionTypeTaxiDispatch, ActionTypeFoodOrder, ActionTypeGoodsOrder, ActionTypeBooking:
		return true
	}
	return false
}

// MerchantTarget identifies the external party a job is dispatched to.
// It must be attached no later than the transition into dispatched.
type MerchantTarget struct {
	Name    string `json:"name"`
	Address string `json:"address"` // messaging address, e.g. E.164 phone number
}

// DispatchEvidence is durable proof that the external send happened. The
// provider message id must be persisted strictly before a job may become
// confirmed.
type DispatchEvidence struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Target            string    `json:"target"`
	Body              string    `json:"body"`
	SentAt            time.Time `json:"sent_at"`
}

// Job is the durable record of a requested action. Jobs are never deleted;
// terminal states are retained for audit.
type Job struct {
	ID              uuid.UUID         `json:"id"`
	OwnerUserID     uuid.UUID         `json:"owner_user_id"`
	ActionType      ActionType        `json:"action_type"`
	ActionData      json.RawMessage   `json:"action_data"`
	Status          JobStatus         `json:"status"`
	PreviousStatus  JobStatus         `json:"previous_status,omitempty"`
	MerchantTarget  *MerchantTarget   `json:"merchant_target,omitempty"`
	Evidence        *DispatchEvidence `json:"dispatch_evidence,omitempty"`
	ClientRequestID string            `json:"client_request_id,omitempty"`
	TraceID         string            `json:"trace_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewJob creates a job in the collecting state.
func NewJob(ownerUserID uuid.UUID, actionType ActionType, actionData json.RawMessage, clientRequestID, traceID string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:              uuid.New(),
		OwnerUserID:     ownerUserID,
		ActionType:      actionType,
		ActionData:      actionData,
		Status:          StatusCollecting,
		ClientRequestID: clientRequestID,
		TraceID:         traceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AuditEvent is one append-only record of a committed status transition.
type AuditEvent struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	FromStatus JobStatus `json:"from_status"`
	ToStatus   JobStatus `json:"to_status"`
	TraceID    string    `json:"trace_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
