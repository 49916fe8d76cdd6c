package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	chi_middleware "github.com/go-chi/chi/v5/middleware"

	inbounddomain "github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
	"github.com/orderpilot/dispatch_services/internal/outbound_service/adapters/msgprovider"
	outbounddomain "github.com/orderpilot/dispatch_services/internal/outbound_service/domain"
)

const signatureHeader = "X-Twilio-Signature"

// InboundReceiver records an inbound payload durably.
type InboundReceiver interface {
	HandleInbound(ctx context.Context, payload inbounddomain.NormalizedInbound, traceID string) (*inbounddomain.InboundReceipt, error)
}

// DeliveryRecorder applies provider delivery-status callbacks.
type DeliveryRecorder interface {
	RecordDeliveryStatus(ctx context.Context, providerMessageID, rawStatus, errorCode, errorMessage string) error
}

// WebhookHandler terminates the provider's webhooks. There is no bearer
// auth here; authenticity comes from the provider's request signature
// computed over the public callback URL and the form parameters.
type WebhookHandler struct {
	receiver      InboundReceiver
	deliveries    DeliveryRecorder
	authToken     string
	publicBaseURL string
	logger        *slog.Logger
}

func NewWebhookHandler(receiver InboundReceiver, deliveries DeliveryRecorder, authToken, publicBaseURL string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver:      receiver,
		deliveries:    deliveries,
		authToken:     authToken,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("handler", "webhooks"),
	}
}

// HandleInbound accepts the provider's inbound-message webhook. The provider
// retries on non-2xx with short timeouts, so the handler answers 200 the
// moment the receipt is durable; only signature (403), validation (400), and
// durability (500) failures return other codes.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi_middleware.GetReqID(ctx)
	logger := h.logger.With("request_id", requestID)

	params, ok := h.verifiedForm(w, r, logger)
	if !ok {
		return
	}

	payload := normalizeInbound(params)
	receipt, err := h.receiver.HandleInbound(ctx, payload, requestID)
	if err != nil {
		switch {
		case errors.Is(err, inbounddomain.ErrEmptyMessageID), errors.Is(err, inbounddomain.ErrEmptyContent):
			logger.WarnContext(ctx, "inbound webhook rejected", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			// Not durable yet; a non-2xx makes the provider redeliver.
			logger.ErrorContext(ctx, "failed to record inbound receipt", "error", err, "message_id", payload.MessageID)
			http.Error(w, "failed to record message", http.StatusInternalServerError)
		}
		return
	}

	logger.InfoContext(ctx, "inbound webhook accepted", "message_id", receipt.MessageID, "status", receipt.Status)
	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// HandleStatusCallback accepts the provider's delivery-status webhook.
// Business failures (unknown message id) still answer 200 so the provider
// does not retry them; only transport-level problems return non-2xx.
func (h *WebhookHandler) HandleStatusCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	params, ok := h.verifiedForm(w, r, logger)
	if !ok {
		return
	}

	messageSid := params["MessageSid"]
	if messageSid == "" {
		logger.WarnContext(ctx, "status callback without MessageSid")
		http.Error(w, "MessageSid is required", http.StatusBadRequest)
		return
	}

	err := h.deliveries.RecordDeliveryStatus(ctx, messageSid,
		params["MessageStatus"], params["ErrorCode"], params["ErrorMessage"])
	if err != nil {
		if errors.Is(err, outbounddomain.ErrMessageNotFound) {
			logger.WarnContext(ctx, "status callback for unknown message", "provider_message_id", messageSid)
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		logger.ErrorContext(ctx, "failed to record delivery status", "error", err, "provider_message_id", messageSid)
		http.Error(w, "failed to record delivery status", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// verifiedForm parses the form body and checks the request signature.
func (h *WebhookHandler) verifiedForm(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (map[string]string, bool) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		logger.WarnContext(ctx, "unparseable webhook form", "error", err)
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return nil, false
	}

	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	requestURL := h.publicBaseURL + r.URL.RequestURI()
	signature := r.Header.Get(signatureHeader)
	if !msgprovider.ValidateSignature(h.authToken, requestURL, params, signature) {
		logger.WarnContext(ctx, "webhook signature verification failed", "url", requestURL)
		http.Error(w, "signature verification failed", http.StatusForbidden)
		return nil, false
	}
	return params, true
}

// normalizeInbound maps the provider's form fields onto the provider-agnostic
// payload: MessageSid/From/To/Body, NumMedia with MediaUrl{i}, and optional
// Latitude/Longitude.
func normalizeInbound(params map[string]string) inbounddomain.NormalizedInbound {
	payload := inbounddomain.NormalizedInbound{
		MessageID: params["MessageSid"],
		From:      params["From"],
		To:        params["To"],
		Text:      params["Body"],
	}

	if numMedia, err := strconv.Atoi(params["NumMedia"]); err == nil && numMedia > 0 {
		for i := 0; i < numMedia; i++ {
			if u := params[fmt.Sprintf("MediaUrl%d", i)]; u != "" {
				payload.MediaURLs = append(payload.MediaURLs, u)
			}
		}
	}

	lat, latErr := strconv.ParseFloat(params["Latitude"], 64)
	lon, lonErr := strconv.ParseFloat(params["Longitude"], 64)
	if latErr == nil && lonErr == nil {
		payload.Location = &inbounddomain.Location{Latitude: lat, Longitude: lon}
	}
	return payload
}
