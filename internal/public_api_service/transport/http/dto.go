package http

import (
	"encoding/json"
	"time"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

type CreateJobRequest struct {
	ActionType      string          `json:"action_type" validate:"required"`
	ActionData      json.RawMessage `json:"action_data,omitempty"`
	ClientRequestID string          `json:"client_request_id,omitempty" validate:"omitempty,max=128"`
}

type MerchantTargetResponse struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type DispatchEvidenceResponse struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Target            string    `json:"target,omitempty"`
	SentAt            time.Time `json:"sent_at,omitempty"`
}

type JobResponse struct {
	ID              string                    `json:"id"`
	ActionType      string                    `json:"action_type"`
	ActionData      json.RawMessage           `json:"action_data"`
	Status          string                    `json:"status"`
	PreviousStatus  string                    `json:"previous_status,omitempty"`
	MerchantTarget  *MerchantTargetResponse   `json:"merchant_target,omitempty"`
	Evidence        *DispatchEvidenceResponse `json:"dispatch_evidence,omitempty"`
	ClientRequestID string                    `json:"client_request_id,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type TransitionResponse struct {
	JobID          string `json:"job_id"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	WasIdempotent  bool   `json:"was_idempotent"`
}

type DispatchResponse struct {
	JobID             string `json:"job_id"`
	ProviderMessageID string `json:"provider_message_id"`
	WasIdempotent     bool   `json:"was_idempotent"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Expected string `json:"expected_status,omitempty"`
	Actual   string `json:"actual_status,omitempty"`
}

func toJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:              job.ID.String(),
		ActionType:      string(job.ActionType),
		ActionData:      job.ActionData,
		Status:          string(job.Status),
		PreviousStatus:  string(job.PreviousStatus),
		ClientRequestID: job.ClientRequestID,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.MerchantTarget != nil {
		resp.MerchantTarget = &MerchantTargetResponse{
			Name:    job.MerchantTarget.Name,
			Address: job.MerchantTarget.Address,
		}
	}
	if job.Evidence != nil {
		resp.Evidence = &DispatchEvidenceResponse{
			ProviderMessageID: job.Evidence.ProviderMessageID,
			Target:            job.Evidence.Target,
			SentAt:            job.Evidence.SentAt,
		}
	}
	return resp
}
