package msgprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioProvider sends SMS through Twilio's Messages API.
type TwilioProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	accountSID string
	authToken  string
	fromNumber string
	callback   string
}

func NewTwilioProvider(logger *slog.Logger, apiURL, accountSID, authToken, fromNumber, statusCallbackURL string, httpClient *http.Client) *TwilioProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioProvider{
		logger:     logger.With("provider", "twilio"),
		httpClient: httpClient,
		apiURL:     apiURL,
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		callback:   statusCallbackURL,
	}
}

type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.fromNumber)
	form.Set("Body", req.Body)
	if p.callback != "" {
		form.Set("StatusCallback", p.callback)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(p.apiURL, "/"), p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.accountSID, p.authToken)

	p.logger.DebugContext(ctx, "sending message via provider",
		"to", req.To, "internal_message_id", req.InternalMessageID)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "provider request failed",
			"error", err, "internal_message_id", req.InternalMessageID)
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp twilioErrorResponse
		msg := fmt.Sprintf("provider returned status %d", httpResp.StatusCode)
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			msg = fmt.Sprintf("provider error %d: %s", errResp.Code, errResp.Message)
		}
		p.logger.WarnContext(ctx, "provider rejected message",
			"status_code", httpResp.StatusCode, "error", msg, "internal_message_id", req.InternalMessageID)
		return nil, fmt.Errorf("%s", msg)
	}

	var msgResp twilioMessageResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, fmt.Errorf("parse provider response: %w", err)
	}
	if msgResp.SID == "" {
		return nil, fmt.Errorf("provider response carries no message sid")
	}

	p.logger.InfoContext(ctx, "message accepted by provider",
		"provider_message_id", msgResp.SID, "provider_status", msgResp.Status,
		"internal_message_id", req.InternalMessageID)
	return &SendResult{ProviderMessageID: msgResp.SID, ProviderStatus: msgResp.Status}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }
