package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable row written for every inbound reconciliation
// event. The unique index on (provider, provider_event_id) closes the race
// between concurrent deliveries of the same event.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	Kind            string         `json:"kind" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	// AttemptedAt is the claim on the record: set while one applier is
	// working the event, cleared when the attempt fails, so concurrent
	// deliveries of the same event never apply it twice.
	AttemptedAt *time.Time `json:"attempted_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Canonical event kinds produced by the normalizer.
const (
	KindChargeSucceeded       = "charge_succeeded"
	KindChargeFailed          = "charge_failed"
	KindSubscriptionRenewed   = "subscription_renewed"
	KindSubscriptionCancelled = "subscription_cancelled"
	KindAdminApproved         = "admin_approved"
	KindAdminRejected         = "admin_rejected"
)

// Subject types an event can target.
const (
	SubjectTransaction          = "transaction"
	SubjectSubscription         = "subscription"
	SubjectPayoutRequest        = "payout_request"
	SubjectSubscriptionApproval = "subscription_approval"
	// SubjectPlatformMembership marks store-receipt settlements that carry no
	// ledger transaction; they update the account's platform membership only.
	SubjectPlatformMembership = "platform_membership"
)

// ReconcileEvent is the canonical reconciliation event. ExternalID is the
// gateway payment identifier used as the idempotency key; for renewals it is
// the invoice id of that billing cycle.
type ReconcileEvent struct {
	Kind            string
	Provider        string
	ProviderEventID string
	ExternalID      string
	// SubscriptionExternalID identifies the subscription a renewal belongs to
	// when ExternalID is the renewal invoice id.
	SubscriptionExternalID string
	SubjectType            string
	SubjectID              snowflake.ID
	Amount                 float64
	Currency               string
	Tier                   string
	AdminID                snowflake.ID
	Notes                  string
	OccurredAt             time.Time
	RawPayload             []byte
}

// Service applies canonical events to ledger state exactly once.
type Service interface {
	Apply(ctx context.Context, event *ReconcileEvent) error
}

// Ingestor accepts raw webhook deliveries.
type Ingestor interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// PaymentAdapter verifies and parses one provider's webhook payloads.
// Implementations are pure: they never touch the store.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*ReconcileEvent, error)
}

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
