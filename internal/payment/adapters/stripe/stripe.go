// Package stripe implements the webhook adapter for the stripe-style payment
// gateway: HMAC signature verification and event normalization.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/fanbase/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrInvalidProvider
	}

	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.ReconcileEvent, error) {
	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parseIntent(event, payload, domain.KindChargeSucceeded)
	case "payment_intent.payment_failed":
		return a.parseIntent(event, payload, domain.KindChargeFailed)
	case "invoice.payment_succeeded":
		return a.parseInvoice(event, payload)
	case "customer.subscription.deleted":
		return a.parseSubscriptionDeleted(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type gatewayEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    gatewayEventData `json:"data"`
}

type gatewayEventData struct {
	Object json.RawMessage `json:"object"`
}

type gatewayIntent struct {
	ID             string  `json:"id"`
	Amount         float64 `json:"amount"`
	AmountReceived float64 `json:"amount_received"`
	Currency       string  `json:"currency"`
	Created        int64   `json:"created"`
}

type gatewayInvoice struct {
	ID           string  `json:"id"`
	Subscription string  `json:"subscription"`
	AmountPaid   float64 `json:"amount_paid"`
	Currency     string  `json:"currency"`
	Created      int64   `json:"created"`
}

type gatewaySubscription struct {
	ID       string `json:"id"`
	Canceled int64  `json:"canceled_at"`
}

func (a *Adapter) parseIntent(event gatewayEvent, payload []byte, kind string) (*domain.ReconcileEvent, error) {
	var intent gatewayIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &domain.ReconcileEvent{
		Kind:            kind,
		Provider:        "stripe",
		ProviderEventID: event.ID,
		ExternalID:      intent.ID,
		SubjectType:     domain.SubjectTransaction,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:      timestamp(intent.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseInvoice(event gatewayEvent, payload []byte) (*domain.ReconcileEvent, error) {
	var invoice gatewayInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" || strings.TrimSpace(invoice.Subscription) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.ReconcileEvent{
		Kind:                   domain.KindSubscriptionRenewed,
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		ExternalID:             invoice.ID,
		SubscriptionExternalID: invoice.Subscription,
		SubjectType:            domain.SubjectSubscription,
		Amount:                 invoice.AmountPaid,
		Currency:               strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		OccurredAt:             timestamp(invoice.Created, event.Created),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseSubscriptionDeleted(event gatewayEvent, payload []byte) (*domain.ReconcileEvent, error) {
	var sub gatewaySubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.ReconcileEvent{
		Kind:            domain.KindSubscriptionCancelled,
		Provider:        "stripe",
		ProviderEventID: event.ID,
		ExternalID:      sub.ID,
		SubjectType:     domain.SubjectSubscription,
		OccurredAt:      timestamp(sub.Canceled, event.Created),
		RawPayload:      payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
