package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

func TestActionDataResolver(t *testing.T) {
	resolver := NewActionDataResolver()

	job := &domain.Job{
		ID:         uuid.New(),
		ActionData: json.RawMessage(`{"summary":"2x margherita","merchant":{"name":"Mario's Pizza","address":"+15550002222"}}`),
	}
	target, err := resolver.Resolve(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "Mario's Pizza", target.Name)
	assert.Equal(t, "+15550002222", target.Address)

	job.ActionData = json.RawMessage(`{"summary":"no merchant"}`)
	_, err = resolver.Resolve(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrMissingMerchantTarget)

	job.ActionData = json.RawMessage(`not json`)
	_, err = resolver.Resolve(context.Background(), job)
	assert.Error(t, err)
}
