package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
	jobdomain "github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

// --- Mocks ---

type MockReceiptRepository struct {
	mock.Mock
}

func (m *MockReceiptRepository) CreateIdempotent(ctx context.Context, receipt *domain.InboundReceipt) (bool, *domain.InboundReceipt, error) {
	args := m.Called(ctx, receipt)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*domain.InboundReceipt), args.Error(2)
}

func (m *MockReceiptRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.InboundReceipt, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InboundReceipt), args.Error(1)
}

func (m *MockReceiptRepository) ClaimProcessing(ctx context.Context, messageID string, staleAfter time.Duration) (bool, *domain.InboundReceipt, error) {
	args := m.Called(ctx, messageID, staleAfter)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*domain.InboundReceipt), args.Error(2)
}

func (m *MockReceiptRepository) MarkProcessed(ctx context.Context, messageID string, route domain.Route, threadID string) error {
	args := m.Called(ctx, messageID, route, threadID)
	return args.Error(0)
}

func (m *MockReceiptRepository) Requeue(ctx context.Context, messageID, lastError string) error {
	args := m.Called(ctx, messageID, lastError)
	return args.Error(0)
}

func (m *MockReceiptRepository) MarkFailed(ctx context.Context, messageID, lastError string) error {
	args := m.Called(ctx, messageID, lastError)
	return args.Error(0)
}

func (m *MockReceiptRepository) ListStuckQueued(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockCorrelationRepository struct {
	mock.Mock
}

func (m *MockCorrelationRepository) Upsert(ctx context.Context, c domain.MessageCorrelation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, messageID string, attempt int) error {
	args := m.Called(ctx, messageID, attempt)
	return args.Error(0)
}

type MockJobCompleter struct {
	mock.Mock
}

func (m *MockJobCompleter) FindActiveByMerchantAddress(ctx context.Context, address string) (*jobdomain.Job, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobdomain.Job), args.Error(1)
}

func (m *MockJobCompleter) CompleteFromMerchantReply(ctx context.Context, jobID uuid.UUID, traceID string) (*jobdomain.CASResult, error) {
	args := m.Called(ctx, jobID, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobdomain.CASResult), args.Error(1)
}

type MockReplySender struct {
	mock.Mock
}

func (m *MockReplySender) SendReply(ctx context.Context, to, body, correlationID string) error {
	args := m.Called(ctx, to, body, correlationID)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
