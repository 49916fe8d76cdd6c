package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
	jobdomain "github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

const maxStoredErrorLen = 500

// JobCompleter is the slice of the job service the processor needs: correlate
// a merchant reply with its in-flight job and complete it.
type JobCompleter interface {
	FindActiveByMerchantAddress(ctx context.Context, address string) (*jobdomain.Job, error)
	CompleteFromMerchantReply(ctx context.Context, jobID uuid.UUID, traceID string) (*jobdomain.CASResult, error)
}

// ReplySender sends an acknowledgement back to the message originator.
// Optional: a nil sender disables acknowledgements.
type ReplySender interface {
	SendReply(ctx context.Context, to, body, correlationID string) error
}

// TaskProcessor executes one processing attempt for an inbound receipt. It is
// invoked by the retrying task queue; delivery is at-least-once, so every
// step is guarded to be safe under redelivery.
type TaskProcessor struct {
	receipts     domain.ReceiptRepository
	correlations domain.CorrelationRepository
	jobs         JobCompleter
	replies      ReplySender
	maxAttempts  int
	staleAfter   time.Duration
	ackOnReply   bool
	logger       *slog.Logger
}

func NewTaskProcessor(
	receipts domain.ReceiptRepository,
	correlations domain.CorrelationRepository,
	jobs JobCompleter,
	replies ReplySender,
	maxAttempts int,
	staleAfter time.Duration,
	ackOnReply bool,
	logger *slog.Logger,
) *TaskProcessor {
	return &TaskProcessor{
		receipts:     receipts,
		correlations: correlations,
		jobs:         jobs,
		replies:      replies,
		maxAttempts:  maxAttempts,
		staleAfter:   staleAfter,
		ackOnReply:   ackOnReply,
		logger:       logger.With("component", "task_processor"),
	}
}

// Process runs one attempt: claim the receipt, route it, invoke the handler,
// record the correlation, and mark the receipt processed. A returned error
// means the attempt should be retried by the queue; nil means the task is
// settled (processed, absorbed as a duplicate, or terminally failed).
func (p *TaskProcessor) Process(ctx context.Context, messageID string) error {
	claimed, receipt, err := p.receipts.ClaimProcessing(ctx, messageID, p.staleAfter)
	if err != nil {
		if errors.Is(err, domain.ErrReceiptNotFound) {
			// A task for a receipt that was never persisted cannot succeed
			// on retry either.
			p.logger.ErrorContext(ctx, "processing task references unknown receipt", "message_id", messageID)
			processTasksCounter.WithLabelValues("error").Inc()
			return nil
		}
		processTasksCounter.WithLabelValues("error").Inc()
		return err
	}
	if !claimed {
		processTasksCounter.WithLabelValues("absorbed").Inc()
		p.logger.InfoContext(ctx, "duplicate task delivery absorbed",
			"message_id", messageID, "status", receipt.Status)
		return nil
	}

	route := domain.ResolveRoute(receipt)
	routedMessagesCounter.WithLabelValues(string(route)).Inc()

	threadID, handlerErr := p.handle(ctx, route, receipt)
	if handlerErr != nil {
		return p.fail(ctx, receipt, handlerErr)
	}

	if err := p.correlations.Upsert(ctx, domain.MessageCorrelation{
		MessageID: messageID,
		Route:     route,
		ThreadID:  threadID,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return p.fail(ctx, receipt, err)
	}

	if err := p.receipts.MarkProcessed(ctx, messageID, route, threadID); err != nil {
		return p.fail(ctx, receipt, err)
	}

	processTasksCounter.WithLabelValues("processed").Inc()
	p.logger.InfoContext(ctx, "inbound receipt processed",
		"message_id", messageID, "route", route, "thread_id", threadID, "attempt", receipt.Attempts)
	return nil
}

// handle dispatches the receipt to its route's domain handler. The route set
// is closed; every member has an arm here.
func (p *TaskProcessor) handle(ctx context.Context, route domain.Route, receipt *domain.InboundReceipt) (string, error) {
	switch route {
	case domain.RouteMerchantReply:
		return p.handleMerchantReply(ctx, receipt)
	case domain.RouteUserCommand:
		return "", p.handleUserCommand(ctx, receipt)
	case domain.RouteLocationPing:
		p.logger.InfoContext(ctx, "location ping received",
			"message_id", receipt.MessageID, "from", receipt.From,
			"latitude", receipt.Location.Latitude, "longitude", receipt.Location.Longitude)
		return "", nil
	case domain.RouteUnrouted:
		p.logger.InfoContext(ctx, "message matched no route",
			"message_id", receipt.MessageID, "from", receipt.From)
		return "", nil
	default:
		return "", fmt.Errorf("unhandled route %q for message %s", route, receipt.MessageID)
	}
}

// handleMerchantReply completes the in-flight job dispatched to the replying
// merchant. A reply with no matching job is settled as processed with no
// thread rather than retried: retrying cannot make a job appear.
func (p *TaskProcessor) handleMerchantReply(ctx context.Context, receipt *domain.InboundReceipt) (string, error) {
	job, err := p.jobs.FindActiveByMerchantAddress(ctx, receipt.From)
	if err != nil {
		if errors.Is(err, jobdomain.ErrJobNotFound) {
			p.logger.WarnContext(ctx, "merchant reply matches no active job",
				"message_id", receipt.MessageID, "from", receipt.From)
			return "", nil
		}
		return "", err
	}

	if _, err := p.jobs.CompleteFromMerchantReply(ctx, job.ID, receipt.MessageID); err != nil {
		// The job may still be between dispatched and confirmed; the queue's
		// backoff gives the confirmation write time to land.
		var conflict *jobdomain.CASConflictError
		if errors.As(err, &conflict) {
			return "", err
		}
		var invalid *jobdomain.InvalidTransitionError
		if errors.As(err, &invalid) {
			// Terminal jobs cannot be completed again; the reply is settled.
			p.logger.WarnContext(ctx, "merchant reply for job in non-completable state",
				"message_id", receipt.MessageID, "job_id", job.ID, "status", invalid.From)
			return job.ID.String(), nil
		}
		return "", err
	}

	p.logger.InfoContext(ctx, "job completed by merchant reply",
		"message_id", receipt.MessageID, "job_id", job.ID, "from", receipt.From)

	if p.ackOnReply && p.replies != nil {
		body := fmt.Sprintf("Thanks! Request %s is confirmed as accepted.", job.ID.String()[:8])
		if err := p.replies.SendReply(ctx, receipt.From, body, job.ID.String()); err != nil {
			// The job is already completed; a lost acknowledgement is not
			// worth re-running the whole attempt.
			p.logger.ErrorContext(ctx, "failed to send reply acknowledgement",
				"error", err, "message_id", receipt.MessageID, "job_id", job.ID)
		}
	}
	return job.ID.String(), nil
}

func (p *TaskProcessor) handleUserCommand(ctx context.Context, receipt *domain.InboundReceipt) error {
	p.logger.InfoContext(ctx, "user command received",
		"message_id", receipt.MessageID, "from", receipt.From, "command", receipt.Text)
	if p.replies == nil {
		return nil
	}
	// STOP/START are honored by the provider itself; HELP gets a reply.
	if strings.EqualFold(strings.TrimSpace(receipt.Text), "HELP") {
		if err := p.replies.SendReply(ctx, receipt.From,
			"Reply YES to accept a request, STOP to opt out.", receipt.MessageID); err != nil {
			p.logger.ErrorContext(ctx, "failed to send help reply",
				"error", err, "message_id", receipt.MessageID)
		}
	}
	return nil
}

// fail settles or retries a failed attempt. Within budget the receipt goes
// back to queued and the error propagates so the queue retries with backoff;
// once the budget is spent the receipt is terminally failed and the task is
// settled.
func (p *TaskProcessor) fail(ctx context.Context, receipt *domain.InboundReceipt, cause error) error {
	msg := truncateError(cause)

	if receipt.Attempts >= p.maxAttempts {
		if err := p.receipts.MarkFailed(ctx, receipt.MessageID, msg); err != nil {
			return err
		}
		processTasksCounter.WithLabelValues("failed").Inc()
		p.logger.ErrorContext(ctx, "retry budget exhausted, receipt failed permanently",
			"message_id", receipt.MessageID, "attempts", receipt.Attempts, "error", cause)
		return nil
	}

	if err := p.receipts.Requeue(ctx, receipt.MessageID, msg); err != nil {
		return err
	}
	processTasksCounter.WithLabelValues("retried").Inc()
	p.logger.WarnContext(ctx, "processing attempt failed, receipt requeued",
		"message_id", receipt.MessageID, "attempt", receipt.Attempts, "error", cause)
	return cause
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		return msg[:maxStoredErrorLen]
	}
	return msg
}
