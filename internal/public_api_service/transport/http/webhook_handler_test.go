package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	inbounddomain "github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
	"github.com/orderpilot/dispatch_services/internal/outbound_service/adapters/msgprovider"
	outbounddomain "github.com/orderpilot/dispatch_services/internal/outbound_service/domain"
)

const (
	testAuthToken = "test-auth-token"
	testBaseURL   = "https://hooks.example.com"
)

type MockInboundReceiver struct {
	mock.Mock
}

func (m *MockInboundReceiver) HandleInbound(ctx context.Context, payload inbounddomain.NormalizedInbound, traceID string) (*inbounddomain.InboundReceipt, error) {
	args := m.Called(ctx, payload, traceID)
	receipt, _ := args.Get(0).(*inbounddomain.InboundReceipt)
	return receipt, args.Error(1)
}

type MockDeliveryRecorder struct {
	mock.Mock
}

func (m *MockDeliveryRecorder) RecordDeliveryStatus(ctx context.Context, providerMessageID, rawStatus, errorCode, errorMessage string) error {
	args := m.Called(ctx, providerMessageID, rawStatus, errorCode, errorMessage)
	return args.Error(0)
}

// signedWebhookRequest builds a form POST carrying a valid provider signature
// for the given path and parameters.
func signedWebhookRequest(t *testing.T, path string, params map[string]string) *http.Request {
	t.Helper()

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, msgprovider.BuildSignature(testAuthToken, testBaseURL+path, params))
	return req
}

func newWebhookHandler(receiver InboundReceiver, deliveries DeliveryRecorder) *WebhookHandler {
	return NewWebhookHandler(receiver, deliveries, testAuthToken, testBaseURL, testLogger())
}

func TestHandleInbound_AcceptsSignedMessage(t *testing.T) {
	mockReceiver := new(MockInboundReceiver)
	mockReceiver.On("HandleInbound", mock.Anything, mock.MatchedBy(func(p inbounddomain.NormalizedInbound) bool {
		return p.MessageID == "SM001" && p.From == "+15551110000" && p.Text == "YES"
	}), mock.Anything).Return(inbounddomain.NewInboundReceipt(inbounddomain.NormalizedInbound{
		MessageID: "SM001", From: "+15551110000", To: "+15552220000", Text: "YES",
	}), nil)

	handler := newWebhookHandler(mockReceiver, new(MockDeliveryRecorder))
	req := signedWebhookRequest(t, "/webhooks/inbound", map[string]string{
		"MessageSid": "SM001",
		"From":       "+15551110000",
		"To":         "+15552220000",
		"Body":       "YES",
	})
	rr := httptest.NewRecorder()
	handler.HandleInbound(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockReceiver.AssertExpectations(t)
}

func TestHandleInbound_BadSignatureForbidden(t *testing.T) {
	mockReceiver := new(MockInboundReceiver)

	handler := newWebhookHandler(mockReceiver, new(MockDeliveryRecorder))
	form := url.Values{"MessageSid": {"SM001"}, "Body": {"YES"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, "bogus")
	rr := httptest.NewRecorder()
	handler.HandleInbound(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockReceiver.AssertNotCalled(t, "HandleInbound")
}

func TestHandleInbound_MediaAndLocationNormalized(t *testing.T) {
	mockReceiver := new(MockInboundReceiver)
	mockReceiver.On("HandleInbound", mock.Anything, mock.MatchedBy(func(p inbounddomain.NormalizedInbound) bool {
		return len(p.MediaURLs) == 2 &&
			p.MediaURLs[0] == "https://media.example.com/a.jpg" &&
			p.Location != nil && p.Location.Latitude == 35.6892
	}), mock.Anything).Return(inbounddomain.NewInboundReceipt(inbounddomain.NormalizedInbound{MessageID: "SM002"}), nil)

	handler := newWebhookHandler(mockReceiver, new(MockDeliveryRecorder))
	req := signedWebhookRequest(t, "/webhooks/inbound", map[string]string{
		"MessageSid": "SM002",
		"From":       "+15551110000",
		"To":         "+15552220000",
		"NumMedia":   "2",
		"MediaUrl0":  "https://media.example.com/a.jpg",
		"MediaUrl1":  "https://media.example.com/b.jpg",
		"Latitude":   "35.6892",
		"Longitude":  "51.3890",
	})
	rr := httptest.NewRecorder()
	handler.HandleInbound(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	mockReceiver.AssertExpectations(t)
}

func TestHandleInbound_EmptyContentRejected(t *testing.T) {
	mockReceiver := new(MockInboundReceiver)
	mockReceiver.On("HandleInbound", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, inbounddomain.ErrEmptyContent)

	handler := newWebhookHandler(mockReceiver, new(MockDeliveryRecorder))
	req := signedWebhookRequest(t, "/webhooks/inbound", map[string]string{
		"MessageSid": "SM003",
		"From":       "+15551110000",
		"To":         "+15552220000",
	})
	rr := httptest.NewRecorder()
	handler.HandleInbound(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleInbound_StorageFailureAsksForRedelivery(t *testing.T) {
	mockReceiver := new(MockInboundReceiver)
	mockReceiver.On("HandleInbound", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	handler := newWebhookHandler(mockReceiver, new(MockDeliveryRecorder))
	req := signedWebhookRequest(t, "/webhooks/inbound", map[string]string{
		"MessageSid": "SM004",
		"From":       "+15551110000",
		"To":         "+15552220000",
		"Body":       "hello",
	})
	rr := httptest.NewRecorder()
	handler.HandleInbound(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleStatusCallback_Recorded(t *testing.T) {
	mockDeliveries := new(MockDeliveryRecorder)
	mockDeliveries.On("RecordDeliveryStatus", mock.Anything, "SM100", "delivered", "", "").Return(nil)

	handler := newWebhookHandler(new(MockInboundReceiver), mockDeliveries)
	req := signedWebhookRequest(t, "/webhooks/status", map[string]string{
		"MessageSid":    "SM100",
		"MessageStatus": "delivered",
	})
	rr := httptest.NewRecorder()
	handler.HandleStatusCallback(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockDeliveries.AssertExpectations(t)
}

func TestHandleStatusCallback_MissingMessageSidRejected(t *testing.T) {
	mockDeliveries := new(MockDeliveryRecorder)

	handler := newWebhookHandler(new(MockInboundReceiver), mockDeliveries)
	req := signedWebhookRequest(t, "/webhooks/status", map[string]string{
		"MessageStatus": "delivered",
	})
	rr := httptest.NewRecorder()
	handler.HandleStatusCallback(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockDeliveries.AssertNotCalled(t, "RecordDeliveryStatus")
}

func TestHandleStatusCallback_UnknownMessageStillAcknowledged(t *testing.T) {
	mockDeliveries := new(MockDeliveryRecorder)
	mockDeliveries.On("RecordDeliveryStatus", mock.Anything, "SM999", "failed", "30007", "blocked").
		Return(outbounddomain.ErrMessageNotFound)

	handler := newWebhookHandler(new(MockInboundReceiver), mockDeliveries)
	req := signedWebhookRequest(t, "/webhooks/status", map[string]string{
		"MessageSid":    "SM999",
		"MessageStatus": "failed",
		"ErrorCode":     "30007",
		"ErrorMessage":  "blocked",
	})
	rr := httptest.NewRecorder()
	handler.HandleStatusCallback(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleStatusCallback_BadSignatureForbidden(t *testing.T) {
	mockDeliveries := new(MockDeliveryRecorder)

	handler := newWebhookHandler(new(MockInboundReceiver), mockDeliveries)
	form := url.Values{"MessageSid": {"SM100"}, "MessageStatus": {"delivered"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(signatureHeader, "bogus")
	rr := httptest.NewRecorder()
	handler.HandleStatusCallback(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockDeliveries.AssertNotCalled(t, "RecordDeliveryStatus")
}
