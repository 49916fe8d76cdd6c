package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

func setupCoordinatorTest(t *testing.T) (*DispatchCoordinator, *MockJobRepository) {
	mockRepo := new(MockJobRepository)
	guard := NewStateGuard(mockRepo, testLogger())
	return NewDispatchCoordinator(mockRepo, guard, testLogger()), mockRepo
}

func dispatchedJob(id uuid.UUID, ev *domain.DispatchEvidence) *domain.Job {
	return &domain.Job{
		ID:             id,
		OwnerUserID:    uuid.New(),
		ActionType:     domain.ActionTypeFoodOrder,
		Status:         domain.StatusDispatched,
		MerchantTarget: &domain.MerchantTarget{Name: "Mario's Pizza", Address: "+15550002222"},
		Evidence:       ev,
	}
}

func TestDispatchAndConfirm_SendFailureLeavesNoWrites(t *testing.T) {
	coordinator, mockRepo := setupCoordinatorTest(t)
	jobID := uuid.New()
	sendErr := errors.New("provider unreachable")

	_, err := coordinator.DispatchAndConfirm(context.Background(), jobID, "trace-1", func(ctx context.Context) (*domain.DispatchEvidence, error) {
		return nil, sendErr
	})

	var dispatchErr *domain.DispatchSendError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, jobID, dispatchErr.JobID)
	assert.ErrorIs(t, err, sendErr)
	// No evidence write, no confirmation attempt.
	mockRepo.AssertNotCalled(t, "AttachDispatchEvidence", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CASTransition", mock.Anything, mock.Anything)
}

func TestDispatchAndConfirm_EvidenceCommittedBeforeConfirmation(t *testing.T) {
	coordinator, mockRepo := setupCoordinatorTest(t)
	jobID := uuid.New()
	evidence := domain.DispatchEvidence{
		ProviderMessageID: "SM123",
		Target:            "+15550002222",
		Body:              "New order",
		SentAt:            time.Now().UTC(),
	}

	attachDone := false
	mockRepo.On("AttachDispatchEvidence", mock.Anything, jobID, evidence).
		Run(func(args mock.Arguments) { attachDone = true }).
		Return(true, nil).Once()
	mockRepo.On("GetByID", mock.Anything, jobID).
		Return(dispatchedJob(jobID, &evidence), nil).Once()
	mockRepo.On("CASTransition", mock.Anything, mock.MatchedBy(func(p domain.CASParams) bool {
		// Confirmation must only be attempted after the evidence write.
		return attachDone && p.ExpectedFrom == domain.StatusDispatched && p.To == domain.StatusConfirmed
	})).Return(&domain.CASResult{
		PreviousStatus: domain.StatusDispatched,
		NewStatus:      domain.StatusConfirmed,
	}, nil).Once()

	res, err := coordinator.DispatchAndConfirm(context.Background(), jobID, "trace-1", func(ctx context.Context) (*domain.DispatchEvidence, error) {
		return &evidence, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SM123", res.ProviderMessageID)
	assert.False(t, res.WasIdempotent)
	mockRepo.AssertExpectations(t)
}

func TestDispatchAndConfirm_RedispatchWithSameSIDIsNoOp(t *testing.T) {
	coordinator, mockRepo := setupCoordinatorTest(t)
	jobID := uuid.New()
	evidence := domain.DispatchEvidence{ProviderMessageID: "SM123"}

	confirmedJob := dispatchedJob(jobID, &evidence)
	confirmedJob.Status = domain.StatusConfirmed

	mockRepo.On("AttachDispatchEvidence", mock.Anything, jobID, evidence).Return(false, nil).Once()
	mockRepo.On("GetByID", mock.Anything, jobID).Return(confirmedJob, nil).Once()
	mockRepo.On("CASTransition", mock.Anything, mock.Anything).Return(&domain.CASResult{
		PreviousStatus: domain.StatusConfirmed,
		NewStatus:      domain.StatusConfirmed,
		WasIdempotent:  true,
	}, nil).Once()

	res, err := coordinator.DispatchAndConfirm(context.Background(), jobID, "trace-2", func(ctx context.Context) (*domain.DispatchEvidence, error) {
		return &evidence, nil
	})
	require.NoError(t, err)
	assert.True(t, res.WasIdempotent)
	assert.Equal(t, "SM123", res.ProviderMessageID)
	mockRepo.AssertExpectations(t)
}

func TestConfirmWithEvidence_MissingEvidenceAlwaysRejected(t *testing.T) {
	coordinator, mockRepo := setupCoordinatorTest(t)
	jobID := uuid.New()

	mockRepo.On("GetByID", mock.Anything, jobID).Return(dispatchedJob(jobID, nil), nil)

	_, err := coordinator.ConfirmWithEvidence(context.Background(), jobID, "trace-3")
	assert.ErrorIs(t, err, domain.ErrMissingEvidence)
	mockRepo.AssertNotCalled(t, "CASTransition", mock.Anything, mock.Anything)
}

func TestConfirmWithEvidence_SucceedsOnceThenIdempotent(t *testing.T) {
	coordinator, mockRepo := setupCoordinatorTest(t)
	jobID := uuid.New()
	evidence := domain.DispatchEvidence{ProviderMessageID: "SM456"}
	job := dispatchedJob(jobID, &evidence)

	mockRepo.On("GetByID", mock.Anything, jobID).Return(job, nil)
	mockRepo.On("CASTransition", mock.Anything, mock.Anything).Return(&domain.CASResult{
		PreviousStatus: domain.StatusDispatched,
		NewStatus:      domain.StatusConfirmed,
	}, nil).Once()
	mockRepo.On("CASTransition", mock.Anything, mock.Anything).Return(&domain.CASResult{
		PreviousStatus: domain.StatusConfirmed,
		NewStatus:      domain.StatusConfirmed,
		WasIdempotent:  true,
	}, nil).Once()

	first, err := coordinator.ConfirmWithEvidence(context.Background(), jobID, "trace-4")
	require.NoError(t, err)
	assert.False(t, first.WasIdempotent)

	second, err := coordinator.ConfirmWithEvidence(context.Background(), jobID, "trace-4")
	require.NoError(t, err)
	assert.True(t, second.WasIdempotent)
	mockRepo.AssertExpectations(t)
}
