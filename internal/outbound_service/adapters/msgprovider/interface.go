package msgprovider

import "context"

// SendRequest carries everything a provider needs for one send.
type SendRequest struct {
	InternalMessageID string
	To                string
	Body              string
}

// SendResult is a successful provider submission.
type SendResult struct {
	ProviderMessageID string
	ProviderStatus    string
}

// Provider is the outbound transport adapter. Implementations must be safe
// for concurrent use.
type Provider interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	Name() string
}
