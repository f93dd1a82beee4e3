package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	accountrepo "github.com/smallbiznis/fanbase/internal/account/repository"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/internal/clock"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fanbase/internal/ledger/repository"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"github.com/smallbiznis/fanbase/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/fanbase/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/fanbase/internal/subscription/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayStub struct {
	intentID string
	err      error
	calls    int
}

func (g *gatewayStub) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Intent{ID: g.intentID, ClientSecret: "cs_" + g.intentID}, nil
}

func (g *gatewayStub) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
	return nil, nil
}

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *gatewayStub
	svc     domain.Service
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

	statements := []string{
		`CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			total_earnings REAL NOT NULL DEFAULT 0,
			monthly_earnings REAL NOT NULL DEFAULT 0,
			subscription_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			platform_subscription_status TEXT,
			platform_subscription_tier TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE plans (
			id INTEGER PRIMARY KEY,
			creator_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			interval_days INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE subscriptions (
			id INTEGER PRIMARY KEY,
			subscriber_id INTEGER NOT NULL,
			creator_id INTEGER NOT NULL,
			plan_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME,
			external_payment_id TEXT UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE transactions (
			id INTEGER PRIMARY KEY,
			transaction_type TEXT NOT NULL,
			status TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			subscriber_id INTEGER NOT NULL,
			creator_id INTEGER NOT NULL,
			subscription_id INTEGER,
			external_payment_id TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	gw := &gatewayStub{intentID: "pi_new"}

	svc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        subscriptionrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		LedgerRepo:  ledgerrepo.Provide(),
		Gateway:     gw,
		AuditSvc:    noopAuditService{},
	})

	return &fixture{db: db, node: node, clock: fakeClock, gateway: gw, svc: svc}
}

func (f *fixture) seedCreator(t *testing.T, enabled bool) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&accountdomain.Account{
		ID:                  id,
		DisplayName:         "creator",
		Role:                accountdomain.RoleCreator,
		SubscriptionEnabled: enabled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}).Error)
	return id
}

func (f *fixture) seedPlan(t *testing.T, creatorID snowflake.ID, amount float64, active bool) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&domain.Plan{
		ID:           id,
		CreatorID:    creatorID,
		Name:         "monthly",
		Amount:       amount,
		Currency:     "USD",
		IntervalDays: 30,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)
	return id
}

func TestSubscribeCreatesPendingRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, true)
	plan := f.seedPlan(t, creator, 9.99, true)
	subscriber := f.node.Generate()

	resp, err := f.svc.Subscribe(ctx, subscriber, plan)
	require.NoError(t, err)
	require.Equal(t, "cs_pi_new", resp.ClientSecret)
	require.Equal(t, domain.SubscriptionStatusPending, resp.Subscription.Status)
	require.Equal(t, "pi_new", resp.Subscription.ExternalPaymentID)

	var tx ledgerdomain.Transaction
	require.NoError(t, f.db.Raw(
		`SELECT * FROM transactions WHERE external_payment_id = ?`, "pi_new",
	).Scan(&tx).Error)
	require.Equal(t, resp.TransactionID, tx.ID)
	require.Equal(t, ledgerdomain.TransactionStatusPending, tx.Status)
	require.InDelta(t, 9.99, tx.Amount, 1e-9)
	require.NotNil(t, tx.SubscriptionID)
	require.Equal(t, resp.Subscription.ID, *tx.SubscriptionID)
}

func TestSubscribeRejectsOpenDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, true)
	plan := f.seedPlan(t, creator, 9.99, true)
	subscriber := f.node.Generate()

	_, err := f.svc.Subscribe(ctx, subscriber, plan)
	require.NoError(t, err)

	f.gateway.intentID = "pi_second"
	_, err = f.svc.Subscribe(ctx, subscriber, plan)
	require.ErrorIs(t, err, domain.ErrAlreadySubscribed)
}

func TestSubscribeRejectsDisabledCreator(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, false)
	plan := f.seedPlan(t, creator, 9.99, true)

	_, err := f.svc.Subscribe(ctx, f.node.Generate(), plan)
	require.ErrorIs(t, err, domain.ErrCreatorDisabled)
	require.Zero(t, f.gateway.calls)
}

func TestSubscribeRejectsInactivePlan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, true)
	plan := f.seedPlan(t, creator, 9.99, false)

	_, err := f.svc.Subscribe(ctx, f.node.Generate(), plan)
	require.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, true)
	plan := f.seedPlan(t, creator, 9.99, true)
	subscriber := f.node.Generate()

	resp, err := f.svc.Subscribe(ctx, subscriber, plan)
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, resp.Subscription.ID))
	require.NoError(t, f.svc.Cancel(ctx, resp.Subscription.ID))

	sub, err := f.svc.GetByID(ctx, resp.Subscription.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusCancelled, sub.Status)
}
