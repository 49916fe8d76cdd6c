package domain

import "time"

// ReceiptStatus is the processing state of an inbound receipt.
type ReceiptStatus string

const (
	ReceiptStatusQueued     ReceiptStatus = "queued"
	ReceiptStatusProcessing ReceiptStatus = "processing"
	ReceiptStatusProcessed  ReceiptStatus = "processed"
	ReceiptStatusFailed     ReceiptStatus = "failed"
)

// Location is an optional coordinate pair attached to an inbound message.
type Location struct {
	Latitude  float64
	Longitude float64
}

// NormalizedInbound is the provider-agnostic view of an inbound webhook
// payload, produced by the transport layer before any persistence.
type NormalizedInbound struct {
	MessageID string
	From      string
	To        string
	Text      string
	MediaURLs []string
	Location  *Location
}

// HasContent reports whether at least one content field is present. A payload
// with an id but no text, media, or location carries nothing to process.
func (n NormalizedInbound) HasContent() bool {
	return n.Text != "" || len(n.MediaURLs) > 0 || n.Location != nil
}

// InboundReceipt is the durable record of one inbound message, keyed by the
// provider's message id. At-least-once webhook delivery collapses onto a
// single receipt; the receipt's status then tracks asynchronous processing.
type InboundReceipt struct {
	MessageID   string
	From        string
	To          string
	Text        string
	MediaURLs   []string
	Location    *Location
	Status      ReceiptStatus
	Attempts    int
	LastError   string
	Route       Route
	ThreadID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// NewInboundReceipt builds a queued receipt from a normalized payload.
func NewInboundReceipt(p NormalizedInbound) *InboundReceipt {
	now := time.Now().UTC()
	return &InboundReceipt{
		MessageID: p.MessageID,
		From:      p.From,
		To:        p.To,
		Text:      p.Text,
		MediaURLs: p.MediaURLs,
		Location:  p.Location,
		Status:    ReceiptStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MessageCorrelation links a processed inbound message to the domain entity
// it acted on.
type MessageCorrelation struct {
	MessageID string
	Route     Route
	ThreadID  string
	UpdatedAt time.Time
}
