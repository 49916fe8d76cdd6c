package app

import (
	"context"
	"log/slog"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
)

// InboundReceiver records inbound messages durably and hands processing off
// to the asynchronous worker. The webhook caller retries aggressively on
// non-2xx, so the receiver's contract is: answer success the moment the
// receipt is durable, regardless of downstream processing.
type InboundReceiver struct {
	receipts domain.ReceiptRepository
	queue    TaskQueue
	logger   *slog.Logger
}

func NewInboundReceiver(receipts domain.ReceiptRepository, queue TaskQueue, logger *slog.Logger) *InboundReceiver {
	return &InboundReceiver{
		receipts: receipts,
		queue:    queue,
		logger:   logger.With("component", "inbound_receiver"),
	}
}

// HandleInbound validates and persists a normalized payload. Redelivery of a
// known message id returns the existing receipt and enqueues nothing. An
// enqueue failure after a fresh insert is logged but not returned: the
// receipt is durable in queued and the sweep re-enqueues it.
func (r *InboundReceiver) HandleInbound(ctx context.Context, payload domain.NormalizedInbound, traceID string) (*domain.InboundReceipt, error) {
	if payload.MessageID == "" {
		receiptsCounter.WithLabelValues("rejected").Inc()
		return nil, domain.ErrEmptyMessageID
	}
	if !payload.HasContent() {
		receiptsCounter.WithLabelValues("rejected").Inc()
		return nil, domain.ErrEmptyContent
	}

	receipt := domain.NewInboundReceipt(payload)
	created, stored, err := r.receipts.CreateIdempotent(ctx, receipt)
	if err != nil {
		receiptsCounter.WithLabelValues("error").Inc()
		return nil, err
	}
	if !created {
		receiptsCounter.WithLabelValues("duplicate").Inc()
		r.logger.InfoContext(ctx, "duplicate inbound delivery absorbed",
			"message_id", payload.MessageID, "status", stored.Status, "trace_id", traceID)
		return stored, nil
	}
	receiptsCounter.WithLabelValues("created").Inc()

	if err := r.queue.Enqueue(ctx, stored.MessageID, 1); err != nil {
		enqueueFailuresCounter.Inc()
		r.logger.ErrorContext(ctx, "failed to enqueue processing task, receipt left queued for sweep",
			"error", err, "message_id", stored.MessageID, "trace_id", traceID)
	}

	r.logger.InfoContext(ctx, "inbound receipt created",
		"message_id", stored.MessageID, "from", stored.From, "trace_id", traceID)
	return stored, nil
}
