package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// ActionDataResolver reads the merchant target embedded in the job's action
// data. Every supported action type carries a "merchant" object collected
// during the request phase.
type ActionDataResolver struct{}

func NewActionDataResolver() *ActionDataResolver { return &ActionDataResolver{} }

func (r *ActionDataResolver) Resolve(_ context.Context, job *domain.Job) (domain.MerchantTarget, error) {
	var payload struct {
		Merchant struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"merchant"`
	}
	if err := json.Unmarshal(job.ActionData, &payload); err != nil {
		return domain.MerchantTarget{}, fmt.Errorf("action data of job %s is not valid JSON: %w", job.ID, err)
	}
	if payload.Merchant.Address == "" {
		return domain.MerchantTarget{}, fmt.Errorf("job %s: %w", job.ID, domain.ErrMissingMerchantTarget)
	}
	return domain.MerchantTarget{Name: payload.Merchant.Name, Address: payload.Merchant.Address}, nil
}
