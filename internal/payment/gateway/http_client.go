package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/fanbase/internal/config"
	"go.uber.org/zap"
)

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) *HTTPClient {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.GatewayBaseURL, "/"),
		apiKey:  cfg.GatewayAPIKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("payment.gateway"),
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type payoutResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var resp intentResponse
	if err := c.post(ctx, "create_intent", "/v1/payment_intents", map[string]any{
		"amount":      req.Amount,
		"currency":    strings.ToLower(strings.TrimSpace(req.Currency)),
		"description": req.Description,
	}, &resp); err != nil {
		return nil, err
	}
	return &Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

func (c *HTTPClient) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	var resp payoutResponse
	if err := c.post(ctx, "create_payout", "/v1/payouts", map[string]any{
		"amount":      req.Amount,
		"currency":    strings.ToLower(strings.TrimSpace(req.Currency)),
		"destination": req.Destination,
	}, &resp); err != nil {
		return nil, err
	}
	return &Payout{ID: resp.ID}, nil
}

func (c *HTTPClient) post(ctx context.Context, operation, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Operation: operation, Class: ClassPermanent, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Operation: operation, Class: ClassPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeout or transport failure: the call may or may not have landed.
		c.log.Warn("gateway call failed", zap.String("operation", operation), zap.Error(err))
		return &Error{Operation: operation, Class: ClassTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Operation: operation, Class: ClassTransient, Status: resp.StatusCode, Err: err}
		}
		return nil
	case resp.StatusCode >= 500:
		c.log.Warn("gateway server error", zap.String("operation", operation), zap.Int("status", resp.StatusCode))
		return &Error{Operation: operation, Class: ClassTransient, Status: resp.StatusCode, Err: errStatus(resp.StatusCode)}
	default:
		return &Error{Operation: operation, Class: ClassPermanent, Status: resp.StatusCode, Err: errStatus(resp.StatusCode)}
	}
}

type statusError int

func (s statusError) Error() string {
	return http.StatusText(int(s))
}

func errStatus(code int) error {
	return statusError(code)
}
