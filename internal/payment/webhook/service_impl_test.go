package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/config"
	"github.com/smallbiznis/fanbase/internal/payment/adapters"
	"github.com/smallbiznis/fanbase/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/fanbase/internal/payment/repository"
	"github.com/smallbiznis/fanbase/internal/payment/webhook"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type reconcileStub struct {
	applied []*paymentdomain.ReconcileEvent
	err     error
}

func (r *reconcileStub) Apply(ctx context.Context, event *paymentdomain.ReconcileEvent) error {
	if r.err != nil {
		return r.err
	}
	r.applied = append(r.applied, event)
	return nil
}

type fixture struct {
	db        *gorm.DB
	reconcile *reconcileStub
	ingestor  paymentdomain.Ingestor
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT,
		received_at DATETIME NOT NULL,
		attempted_at DATETIME,
		processed_at DATETIME,
		UNIQUE(provider, provider_event_id)
	)`).Error)

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	stub := &reconcileStub{}
	ingestor := webhook.NewService(webhook.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Reconcile: stub,
		EventRepo: paymentrepo.Provide(),
		Adapters:  adapters.NewRegistry(stripe.NewFactory()),
		Cfg:       config.Config{GatewayWebhookSecret: testSecret},
	})

	return &fixture{db: db, reconcile: stub, ingestor: ingestor}
}

func signedHeaders(payload []byte) http.Header {
	timestamp := "1700000000"
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(timestamp + "." + string(payload)))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestIngestForwardsVerifiedEvent(t *testing.T) {
	f := setup(t)
	payload := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": 1700000000,
		"data": {"object": {"id": "pi_1", "amount_received": 9.99, "currency": "usd"}}
	}`)

	require.NoError(t, f.ingestor.IngestWebhook(context.Background(), "stripe", payload, signedHeaders(payload)))

	require.Len(t, f.reconcile.applied, 1)
	event := f.reconcile.applied[0]
	require.Equal(t, paymentdomain.KindChargeSucceeded, event.Kind)
	require.Equal(t, "evt_1", event.ProviderEventID)
	require.Equal(t, "pi_1", event.ExternalID)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := setup(t)
	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2"}}}`)

	err := f.ingestor.IngestWebhook(context.Background(), "stripe", payload, http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	require.Empty(t, f.reconcile.applied)
}

func TestIngestRejectsUnknownProvider(t *testing.T) {
	f := setup(t)
	payload := []byte(`{"id":"evt_3","type":"payment_intent.succeeded"}`)

	err := f.ingestor.IngestWebhook(context.Background(), "braintree", payload, signedHeaders(payload))
	require.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
}

func TestIngestRecordsIgnoredEventType(t *testing.T) {
	f := setup(t)
	payload := []byte(`{"id":"evt_4","type":"charge.refunded","data":{"object":{}}}`)

	require.NoError(t, f.ingestor.IngestWebhook(context.Background(), "stripe", payload, signedHeaders(payload)))
	require.Empty(t, f.reconcile.applied)

	var record paymentdomain.EventRecord
	require.NoError(t, f.db.Raw(
		`SELECT * FROM payment_events WHERE provider = ? AND provider_event_id = ?`, "stripe", "evt_4",
	).Scan(&record).Error)
	require.Equal(t, "ignored", record.Kind)
	require.NotNil(t, record.ProcessedAt)
}

func TestIngestTreatsDuplicateAsAcknowledged(t *testing.T) {
	f := setup(t)
	f.reconcile.err = paymentdomain.ErrEventAlreadyProcessed

	payload := []byte(`{
		"id": "evt_5",
		"type": "payment_intent.succeeded",
		"created": 1700000000,
		"data": {"object": {"id": "pi_5", "amount_received": 5, "currency": "usd"}}
	}`)

	require.NoError(t, f.ingestor.IngestWebhook(context.Background(), "stripe", payload, signedHeaders(payload)))
}
