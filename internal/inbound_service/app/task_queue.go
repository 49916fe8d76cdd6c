package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/orderpilot/dispatch_services/internal/platform/messagebroker"
)

// TaskSubject carries inbound processing tasks between the API service and
// the worker pool.
const TaskSubject = "inbound.receipt.process"

// ProcessTask is the wire payload of one processing attempt. Delivery is
// at-least-once; the processor absorbs duplicates via the receipt claim.
type ProcessTask struct {
	MessageID string `json:"message_id"`
	Attempt   int    `json:"attempt"`
}

// TaskQueue enqueues processing tasks for inbound receipts.
type TaskQueue interface {
	Enqueue(ctx context.Context, messageID string, attempt int) error
}

// NATSTaskQueue publishes processing tasks onto the message bus.
type NATSTaskQueue struct {
	bus    messagebroker.MessageBus
	logger *slog.Logger
}

func NewNATSTaskQueue(bus messagebroker.MessageBus, logger *slog.Logger) *NATSTaskQueue {
	return &NATSTaskQueue{bus: bus, logger: logger.With("component", "task_queue")}
}

func (q *NATSTaskQueue) Enqueue(ctx context.Context, messageID string, attempt int) error {
	payload, err := json.Marshal(ProcessTask{MessageID: messageID, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("marshal process task for %s: %w", messageID, err)
	}
	if err := q.bus.Publish(ctx, TaskSubject, payload); err != nil {
		return fmt.Errorf("enqueue process task for %s: %w", messageID, err)
	}
	q.logger.DebugContext(ctx, "enqueued processing task", "message_id", messageID, "attempt", attempt)
	return nil
}
