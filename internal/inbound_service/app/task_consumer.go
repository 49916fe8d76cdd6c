package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/orderpilot/dispatch_services/internal/platform/messagebroker"
)

const maxRetryDelay = 2 * time.Minute

// TaskConsumer subscribes to the processing task subject and drives the
// processor. A failed attempt is republished with exponential backoff until
// the attempt budget runs out; the processor has by then parked the receipt
// in its terminal failed state.
type TaskConsumer struct {
	bus         messagebroker.MessageBus
	queue       TaskQueue
	processor   *TaskProcessor
	maxAttempts int
	retryBase   time.Duration
	logger      *slog.Logger
}

func NewTaskConsumer(
	bus messagebroker.MessageBus,
	queue TaskQueue,
	processor *TaskProcessor,
	maxAttempts int,
	retryBase time.Duration,
	logger *slog.Logger,
) *TaskConsumer {
	return &TaskConsumer{
		bus:         bus,
		queue:       queue,
		processor:   processor,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		logger:      logger.With("component", "task_consumer"),
	}
}

// Start subscribes with a queue group so concurrent workers share the load.
// It returns the live subscription; the caller owns unsubscribing on
// shutdown.
func (c *TaskConsumer) Start(ctx context.Context, queueGroup string) (messagebroker.Subscription, error) {
	return c.bus.Subscribe(ctx, TaskSubject, queueGroup, func(msg messagebroker.Message) {
		var task ProcessTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			c.logger.ErrorContext(ctx, "dropping undecodable task payload",
				"error", err, "subject", msg.Subject())
			return
		}
		if task.Attempt < 1 {
			task.Attempt = 1
		}
		c.handleTask(ctx, task)
	})
}

func (c *TaskConsumer) handleTask(ctx context.Context, task ProcessTask) {
	err := c.processor.Process(ctx, task.MessageID)
	if err == nil {
		return
	}

	if task.Attempt >= c.maxAttempts {
		// The processor has already marked the receipt failed; nothing left
		// to republish.
		c.logger.ErrorContext(ctx, "task abandoned after final attempt",
			"message_id", task.MessageID, "attempt", task.Attempt, "error", err)
		return
	}

	delay := backoffDelay(c.retryBase, task.Attempt)
	c.logger.WarnContext(ctx, "scheduling task retry",
		"message_id", task.MessageID, "attempt", task.Attempt, "delay", delay, "error", err)

	next := ProcessTask{MessageID: task.MessageID, Attempt: task.Attempt + 1}
	time.AfterFunc(delay, func() {
		// The subscription context may be gone by the time the timer fires;
		// the republish must still happen so the receipt is not stranded
		// until the next sweep.
		if err := c.queue.Enqueue(context.WithoutCancel(ctx), next.MessageID, next.Attempt); err != nil {
			c.logger.Error("failed to republish task retry",
				"error", err, "message_id", next.MessageID, "attempt", next.Attempt)
		}
	})
}

// backoffDelay doubles per attempt from base, capped at maxRetryDelay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
