package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orderpilot/dispatch_services/internal/outbound_service/adapters/msgprovider"
	"github.com/orderpilot/dispatch_services/internal/outbound_service/domain"
)

// SendInput is one send request. IdempotencyKey is optional; when empty the
// key is derived from the other fields and the current hour bucket.
type SendInput struct {
	To             string
	Body           string
	TemplateKey    string
	CorrelationID  string
	IdempotencyKey string
}

// Sender performs idempotent outbound sends: reserve the key, create the
// pending record, send through the provider, then reconcile the record to
// sent or failed. Re-invoking Send with the same key is always safe.
type Sender struct {
	repo     domain.OutboundRepository
	provider msgprovider.Provider
	logger   *slog.Logger
}

func NewSender(repo domain.OutboundRepository, provider msgprovider.Provider, logger *slog.Logger) *Sender {
	return &Sender{
		repo:     repo,
		provider: provider,
		logger:   logger.With("component", "outbound_sender"),
	}
}

func (s *Sender) Send(ctx context.Context, in SendInput) (*domain.OutboundMessage, error) {
	if in.To == "" {
		sendsCounter.WithLabelValues("rejected").Inc()
		return nil, domain.ErrEmptyRecipient
	}
	if in.Body == "" {
		sendsCounter.WithLabelValues("rejected").Inc()
		return nil, domain.ErrEmptyBody
	}

	key := in.IdempotencyKey
	if key == "" {
		key = domain.DeriveIdempotencyKey(domain.ChannelSMS, in.To, in.CorrelationID, in.TemplateKey, time.Now())
	}

	msg := domain.NewOutboundMessage(domain.ChannelSMS, in.To, in.Body, in.TemplateKey, in.CorrelationID, key)
	created, existing, err := s.repo.ReserveAndCreate(ctx, msg)
	if err != nil {
		sendsCounter.WithLabelValues("error").Inc()
		return nil, err
	}
	if !created {
		sendsCounter.WithLabelValues("duplicate").Inc()
		s.logger.InfoContext(ctx, "idempotency key already reserved, returning prior message",
			"message_id", existing.ID, "status", existing.Status, "to", in.To)
		return existing, nil
	}

	timer := prometheus.NewTimer(sendDurationHist)
	result, sendErr := s.provider.Send(ctx, msgprovider.SendRequest{
		InternalMessageID: msg.ID.String(),
		To:                msg.To,
		Body:              msg.Body,
	})
	timer.ObserveDuration()

	if sendErr != nil {
		if err := s.repo.MarkFailed(ctx, msg.ID, sendErr.Error()); err != nil {
			s.logger.ErrorContext(ctx, "failed to record send failure",
				"error", err, "message_id", msg.ID)
		}
		sendsCounter.WithLabelValues("failed").Inc()
		msg.Status = domain.DeliveryStatusFailed
		msg.ErrorMessage = sendErr.Error()
		return msg, &domain.SendFailedError{MessageID: msg.ID.String(), Err: sendErr}
	}

	if err := s.repo.MarkSent(ctx, msg.ID, result.ProviderMessageID); err != nil {
		// The provider accepted the message; surface the record in its true
		// state and let the caller re-read.
		s.logger.ErrorContext(ctx, "send succeeded but marking sent failed",
			"error", err, "message_id", msg.ID, "provider_message_id", result.ProviderMessageID)
		return nil, err
	}

	sendsCounter.WithLabelValues("sent").Inc()
	now := time.Now().UTC()
	msg.Status = domain.DeliveryStatusSent
	msg.ProviderMessageID = result.ProviderMessageID
	msg.SentAt = &now
	s.logger.InfoContext(ctx, "outbound message sent",
		"message_id", msg.ID, "provider_message_id", result.ProviderMessageID, "to", msg.To)
	return msg, nil
}

// RecordDeliveryStatus applies a provider delivery callback. Unrecognized
// provider statuses map to pending; the callback never fails on them.
func (s *Sender) RecordDeliveryStatus(ctx context.Context, providerMessageID, rawStatus, errorCode, errorMessage string) error {
	status := domain.MapProviderStatus(rawStatus)
	if err := s.repo.UpdateDeliveryStatus(ctx, providerMessageID, status, errorCode, errorMessage); err != nil {
		return err
	}
	deliveryCallbacksCounter.WithLabelValues(string(status)).Inc()
	s.logger.InfoContext(ctx, "delivery status recorded",
		"provider_message_id", providerMessageID, "raw_status", rawStatus, "status", status)
	return nil
}
