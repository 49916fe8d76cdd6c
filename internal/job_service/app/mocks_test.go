package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// --- Mocks ---

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) GetByClientRequestID(ctx context.Context, ownerID uuid.UUID, clientRequestID string) (*domain.Job, error) {
	args := m.Called(ctx, ownerID, clientRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) CASTransition(ctx context.Context, p domain.CASParams) (*domain.CASResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CASResult), args.Error(1)
}

func (m *MockJobRepository) AttachDispatchEvidence(ctx context.Context, jobID uuid.UUID, ev domain.DispatchEvidence) (bool, error) {
	args := m.Called(ctx, jobID, ev)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) ListAuditEvents(ctx context.Context, jobID uuid.UUID) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

type MockMerchantResolver struct {
	mock.Mock
}

func (m *MockMerchantResolver) Resolve(ctx context.Context, job *domain.Job) (domain.MerchantTarget, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(domain.MerchantTarget), args.Error(1)
}

type MockDispatchSender struct {
	mock.Mock
}

func (m *MockDispatchSender) SendDispatch(ctx context.Context, job *domain.Job, target domain.MerchantTarget, body string) (*domain.DispatchEvidence, error) {
	args := m.Called(ctx, job, target, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DispatchEvidence), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
