package app

import (
	"context"
	"fmt"
	"time"

	jobdomain "github.com/orderpilot/dispatch_services/internal/job_service/domain"
)

const (
	templateJobDispatch = "job_dispatch"
	templateReplyAck    = "reply_ack"
)

// JobDispatchAdapter exposes the sender as the job service's dispatch
// transport. The idempotency key (keyed on the job id and the dispatch
// template) absorbs duplicated sendFn invocations within the hour window.
type JobDispatchAdapter struct {
	sender *Sender
}

func NewJobDispatchAdapter(sender *Sender) *JobDispatchAdapter {
	return &JobDispatchAdapter{sender: sender}
}

func (a *JobDispatchAdapter) SendDispatch(ctx context.Context, job *jobdomain.Job, target jobdomain.MerchantTarget, body string) (*jobdomain.DispatchEvidence, error) {
	msg, err := a.sender.Send(ctx, SendInput{
		To:            target.Address,
		Body:          body,
		TemplateKey:   templateJobDispatch,
		CorrelationID: job.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	if msg.ProviderMessageID == "" {
		// A reserved-but-unsent duplicate carries no provider id yet; the
		// dispatch has no evidence to attach and must be retried.
		return nil, fmt.Errorf("outbound message %s has no provider message id yet", msg.ID)
	}

	sentAt := msg.UpdatedAt
	if msg.SentAt != nil {
		sentAt = *msg.SentAt
	}
	return &jobdomain.DispatchEvidence{
		ProviderMessageID: msg.ProviderMessageID,
		Target:            msg.To,
		Body:              msg.Body,
		SentAt:            sentAt.UTC().Truncate(time.Millisecond),
	}, nil
}

// ReplyAdapter exposes the sender as the inbound pipeline's acknowledgement
// channel.
type ReplyAdapter struct {
	sender *Sender
}

func NewReplyAdapter(sender *Sender) *ReplyAdapter {
	return &ReplyAdapter{sender: sender}
}

func (a *ReplyAdapter) SendReply(ctx context.Context, to, body, correlationID string) error {
	_, err := a.sender.Send(ctx, SendInput{
		To:            to,
		Body:          body,
		TemplateKey:   templateReplyAck,
		CorrelationID: correlationID,
	})
	return err
}
