package msgprovider

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// MockProvider accepts every send and fabricates provider message ids. Used
// in local development when no provider credentials are configured.
type MockProvider struct {
	logger  *slog.Logger
	counter atomic.Int64
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger.With("provider", "mock")}
}

func (p *MockProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	sid := fmt.Sprintf("SMmock%012d", p.counter.Add(1))
	p.logger.InfoContext(ctx, "mock send accepted",
		"to", req.To, "provider_message_id", sid, "internal_message_id", req.InternalMessageID)
	return &SendResult{ProviderMessageID: sid, ProviderStatus: "queued"}, nil
}

func (p *MockProvider) Name() string { return "mock" }
