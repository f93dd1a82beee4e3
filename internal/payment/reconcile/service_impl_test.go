package reconcile_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	accountrepo "github.com/smallbiznis/fanbase/internal/account/repository"
	auditrepo "github.com/smallbiznis/fanbase/internal/audit/repository"
	auditservice "github.com/smallbiznis/fanbase/internal/audit/service"
	"github.com/smallbiznis/fanbase/internal/clock"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fanbase/internal/ledger/repository"
	"github.com/smallbiznis/fanbase/internal/payment/domain"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"github.com/smallbiznis/fanbase/internal/payment/reconcile"
	paymentrepo "github.com/smallbiznis/fanbase/internal/payment/repository"
	subscriptiondomain "github.com/smallbiznis/fanbase/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/fanbase/internal/subscription/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayStub struct {
	payoutID  string
	payoutErr error
	calls     int
}

func (g *gatewayStub) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	return &gateway.Intent{ID: "pi_stub", ClientSecret: "cs_stub"}, nil
}

func (g *gatewayStub) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
	g.calls++
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	return &gateway.Payout{ID: g.payoutID}, nil
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

	prepareSchema(t, db)

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	gw := &gatewayStub{payoutID: "po_1"}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  auditrepo.Provide(),
	})

	svc := reconcile.NewService(reconcile.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		EventRepo:   paymentrepo.Provide(),
		LedgerRepo:  ledgerrepo.Provide(),
		SubRepo:     subscriptionrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		AuditSvc:    auditSvc,
		Gateway:     gw,
	})

	return &fixture{db: db, node: node, clock: fakeClock, gateway: gw, svc: svc}
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

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
		`CREATE TABLE payout_requests (
			id INTEGER PRIMARY KEY,
			creator_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			external_payout_id TEXT,
			admin_notes TEXT,
			requested_at DATETIME NOT NULL,
			processed_at DATETIME,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_events (
			id INTEGER PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BLOB,
			received_at DATETIME NOT NULL,
			attempted_at DATETIME,
			processed_at DATETIME,
			UNIQUE (provider, provider_event_id)
		)`,
		`CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata BLOB,
			ip_address TEXT,
			user_agent TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

func (f *fixture) seedAccount(t *testing.T, role accountdomain.Role, earnings float64) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&accountdomain.Account{
		ID:                  id,
		DisplayName:         "acct-" + id.String(),
		Role:                role,
		TotalEarnings:       earnings,
		MonthlyEarnings:     earnings,
		SubscriptionEnabled: role == accountdomain.RoleCreator,
		CreatedAt:           now,
		UpdatedAt:           now,
	}).Error)
	return id
}

func (f *fixture) seedPlan(t *testing.T, creatorID snowflake.ID, amount float64, intervalDays int) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&subscriptiondomain.Plan{
		ID:           id,
		CreatorID:    creatorID,
		Name:         "plan-" + id.String(),
		Amount:       amount,
		Currency:     "USD",
		IntervalDays: intervalDays,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)
	return id
}

func (f *fixture) seedSubscription(t *testing.T, subscriberID, creatorID, planID snowflake.ID, status subscriptiondomain.SubscriptionStatus, externalID string) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&subscriptiondomain.Subscription{
		ID:                id,
		SubscriberID:      subscriberID,
		CreatorID:         creatorID,
		PlanID:            planID,
		Status:            status,
		StartDate:         now,
		ExternalPaymentID: externalID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}).Error)
	return id
}

func (f *fixture) seedTransaction(t *testing.T, txType ledgerdomain.TransactionType, subscriberID, creatorID snowflake.ID, subscriptionID *snowflake.ID, amount float64, externalID string) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&ledgerdomain.Transaction{
		ID:                id,
		Type:              txType,
		Status:            ledgerdomain.TransactionStatusPending,
		Amount:            amount,
		Currency:          "USD",
		SubscriberID:      subscriberID,
		CreatorID:         creatorID,
		SubscriptionID:    subscriptionID,
		ExternalPaymentID: externalID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}).Error)
	return id
}

func (f *fixture) seedPayoutRequest(t *testing.T, creatorID snowflake.ID, amount float64, status ledgerdomain.PayoutStatus) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&ledgerdomain.PayoutRequest{
		ID:          id,
		CreatorID:   creatorID,
		Amount:      amount,
		Currency:    "USD",
		Status:      status,
		RequestedAt: now,
		UpdatedAt:   now,
	}).Error)
	return id
}

func (f *fixture) account(t *testing.T, id snowflake.ID) accountdomain.Account {
	t.Helper()
	var item accountdomain.Account
	require.NoError(t, f.db.Raw(`SELECT * FROM accounts WHERE id = ?`, id).Scan(&item).Error)
	return item
}

func (f *fixture) transaction(t *testing.T, externalID string) ledgerdomain.Transaction {
	t.Helper()
	var item ledgerdomain.Transaction
	require.NoError(t, f.db.Raw(`SELECT * FROM transactions WHERE external_payment_id = ?`, externalID).Scan(&item).Error)
	return item
}

func (f *fixture) subscription(t *testing.T, id snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	var item subscriptiondomain.Subscription
	require.NoError(t, f.db.Raw(`SELECT * FROM subscriptions WHERE id = ?`, id).Scan(&item).Error)
	return item
}

func (f *fixture) payout(t *testing.T, id snowflake.ID) ledgerdomain.PayoutRequest {
	t.Helper()
	var item ledgerdomain.PayoutRequest
	require.NoError(t, f.db.Raw(`SELECT * FROM payout_requests WHERE id = ?`, id).Scan(&item).Error)
	return item
}

func chargeEvent(eventID, externalID string, amount float64) *domain.ReconcileEvent {
	return &domain.ReconcileEvent{
		Kind:            domain.KindChargeSucceeded,
		Provider:        "stripe",
		ProviderEventID: eventID,
		ExternalID:      externalID,
		SubjectType:     domain.SubjectTransaction,
		Amount:          amount,
		Currency:        "USD",
		RawPayload:      []byte(`{}`),
	}
}

func TestChargeSucceededSettlesActivatesAndCredits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	plan := f.seedPlan(t, creator, 9.99, 30)
	subID := f.seedSubscription(t, subscriber, creator, plan, subscriptiondomain.SubscriptionStatusPending, "pi_100")
	f.seedTransaction(t, ledgerdomain.TransactionTypeSubscription, subscriber, creator, &subID, 9.99, "pi_100")

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_1", "pi_100", 9.99)))

	tx := f.transaction(t, "pi_100")
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, tx.Status)

	acct := f.account(t, creator)
	require.InDelta(t, 9.99, acct.TotalEarnings, 1e-9)
	require.InDelta(t, 9.99, acct.MonthlyEarnings, 1e-9)

	sub := f.subscription(t, subID)
	require.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.EndDate)
	require.Equal(t, f.clock.Now().AddDate(0, 0, 30), sub.EndDate.UTC())
}

func TestDuplicateEventIsNotAppliedTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, subscriber, creator, nil, 15.5, "pi_tip")

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_tip", "pi_tip", 15.5)))
	err := f.svc.Apply(ctx, chargeEvent("evt_tip", "pi_tip", 15.5))
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	acct := f.account(t, creator)
	require.InDelta(t, 15.5, acct.TotalEarnings, 1e-9)
}

func TestRedeliveredSettlementWithNewEventIDIsNoOp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, subscriber, creator, nil, 20, "pi_redeliver")

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_a", "pi_redeliver", 20)))
	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_b", "pi_redeliver", 20)))

	acct := f.account(t, creator)
	require.InDelta(t, 20, acct.TotalEarnings, 1e-9)
}

func TestConflictingTerminalStateIsNeverOverwritten(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, subscriber, creator, nil, 10, "pi_conflict")

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_ok", "pi_conflict", 10)))

	failed := &domain.ReconcileEvent{
		Kind:            domain.KindChargeFailed,
		Provider:        "stripe",
		ProviderEventID: "evt_fail",
		ExternalID:      "pi_conflict",
		SubjectType:     domain.SubjectTransaction,
		RawPayload:      []byte(`{}`),
	}
	err := f.svc.Apply(ctx, failed)
	require.ErrorIs(t, err, domain.ErrTerminalConflict)

	tx := f.transaction(t, "pi_conflict")
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, tx.Status)
}

func TestChargeFailedCancelsPendingSubscription(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	plan := f.seedPlan(t, creator, 5, 30)
	subID := f.seedSubscription(t, subscriber, creator, plan, subscriptiondomain.SubscriptionStatusPending, "pi_fail")
	f.seedTransaction(t, ledgerdomain.TransactionTypeSubscription, subscriber, creator, &subID, 5, "pi_fail")

	err := f.svc.Apply(ctx, &domain.ReconcileEvent{
		Kind:            domain.KindChargeFailed,
		Provider:        "stripe",
		ProviderEventID: "evt_fail_1",
		ExternalID:      "pi_fail",
		SubjectType:     domain.SubjectTransaction,
		RawPayload:      []byte(`{}`),
	})
	require.NoError(t, err)

	tx := f.transaction(t, "pi_fail")
	require.Equal(t, ledgerdomain.TransactionStatusFailed, tx.Status)

	sub := f.subscription(t, subID)
	require.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, sub.Status)

	acct := f.account(t, creator)
	require.Zero(t, acct.TotalEarnings)
}

func TestRenewalExtendsEndDateAndDedupesInvoices(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	plan := f.seedPlan(t, creator, 9.99, 30)
	subID := f.seedSubscription(t, subscriber, creator, plan, subscriptiondomain.SubscriptionStatusActive, "sub_42")

	endDate := f.clock.Now().AddDate(0, 0, 3)
	require.NoError(t, f.db.Exec(
		`UPDATE subscriptions SET end_date = ? WHERE id = ?`, endDate, subID,
	).Error)

	renewal := func(eventID, invoiceID string) *domain.ReconcileEvent {
		return &domain.ReconcileEvent{
			Kind:                   domain.KindSubscriptionRenewed,
			Provider:               "stripe",
			ProviderEventID:        eventID,
			ExternalID:             invoiceID,
			SubscriptionExternalID: "sub_42",
			SubjectType:            domain.SubjectSubscription,
			Amount:                 9.99,
			Currency:               "USD",
			RawPayload:             []byte(`{}`),
		}
	}

	require.NoError(t, f.svc.Apply(ctx, renewal("evt_renew_1", "in_1")))

	sub := f.subscription(t, subID)
	require.NotNil(t, sub.EndDate)
	require.Equal(t, endDate.AddDate(0, 0, 30), sub.EndDate.UTC())

	acct := f.account(t, creator)
	require.InDelta(t, 9.99, acct.TotalEarnings, 1e-9)

	// Same invoice under a new event id: the transaction insert loses, so
	// nothing is extended or credited again.
	require.NoError(t, f.svc.Apply(ctx, renewal("evt_renew_2", "in_1")))

	sub = f.subscription(t, subID)
	require.Equal(t, endDate.AddDate(0, 0, 30), sub.EndDate.UTC())
	acct = f.account(t, creator)
	require.InDelta(t, 9.99, acct.TotalEarnings, 1e-9)
}

func TestPayoutApprovalDebitsAndMarksProcessing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := f.seedAccount(t, accountdomain.RoleAdmin, 0)
	creator := f.seedAccount(t, accountdomain.RoleCreator, 100)
	payoutID := f.seedPayoutRequest(t, creator, 40, ledgerdomain.PayoutStatusPending)

	err := f.svc.Apply(ctx, &domain.ReconcileEvent{
		Kind:            domain.KindAdminApproved,
		Provider:        "admin",
		ProviderEventID: "review-1-approved",
		SubjectType:     domain.SubjectPayoutRequest,
		SubjectID:       payoutID,
		AdminID:         admin,
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.calls)

	payout := f.payout(t, payoutID)
	require.Equal(t, ledgerdomain.PayoutStatusProcessing, payout.Status)
	require.NotNil(t, payout.ExternalPayoutID)
	require.Equal(t, "po_1", *payout.ExternalPayoutID)

	acct := f.account(t, creator)
	require.InDelta(t, 60, acct.TotalEarnings, 1e-9)

	var auditCount int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM audit_logs WHERE action = ?`, "payout.approved",
	).Scan(&auditCount).Error)
	require.EqualValues(t, 1, auditCount)
}

func TestPayoutApprovalTransientFailureLeavesPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := f.seedAccount(t, accountdomain.RoleAdmin, 0)
	creator := f.seedAccount(t, accountdomain.RoleCreator, 100)
	payoutID := f.seedPayoutRequest(t, creator, 40, ledgerdomain.PayoutStatusPending)

	f.gateway.payoutErr = &gateway.Error{
		Operation: "create_payout",
		Class:     gateway.ClassTransient,
		Err:       context.DeadlineExceeded,
	}

	event := &domain.ReconcileEvent{
		Kind:            domain.KindAdminApproved,
		Provider:        "admin",
		ProviderEventID: "review-2-approved",
		SubjectType:     domain.SubjectPayoutRequest,
		SubjectID:       payoutID,
		AdminID:         admin,
	}
	err := f.svc.Apply(ctx, event)
	require.Error(t, err)
	require.True(t, gateway.IsTransient(err))

	payout := f.payout(t, payoutID)
	require.Equal(t, ledgerdomain.PayoutStatusPending, payout.Status)

	acct := f.account(t, creator)
	require.InDelta(t, 100, acct.TotalEarnings, 1e-9)

	// The failed attempt left the event unprocessed, so a retry with the
	// same event id goes through once the gateway recovers.
	f.gateway.payoutErr = nil
	require.NoError(t, f.svc.Apply(ctx, event))

	payout = f.payout(t, payoutID)
	require.Equal(t, ledgerdomain.PayoutStatusProcessing, payout.Status)
	acct = f.account(t, creator)
	require.InDelta(t, 60, acct.TotalEarnings, 1e-9)
}

func TestInFlightApprovalIsNotAppliedTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := f.seedAccount(t, accountdomain.RoleAdmin, 0)
	creator := f.seedAccount(t, accountdomain.RoleCreator, 100)
	payoutID := f.seedPayoutRequest(t, creator, 40, ledgerdomain.PayoutStatusPending)

	// Another applier holds the claim on this event: the record exists,
	// unprocessed, with a fresh attempt stamp.
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&domain.EventRecord{
		ID:              f.node.Generate(),
		Provider:        "admin",
		ProviderEventID: "review-9-admin_approved",
		Kind:            domain.KindAdminApproved,
		ReceivedAt:      now,
		AttemptedAt:     &now,
	}).Error)

	err := f.svc.Apply(ctx, &domain.ReconcileEvent{
		Kind:            domain.KindAdminApproved,
		Provider:        "admin",
		ProviderEventID: "review-9-admin_approved",
		SubjectType:     domain.SubjectPayoutRequest,
		SubjectID:       payoutID,
		AdminID:         admin,
	})
	require.ErrorIs(t, err, domain.ErrEventInFlight)

	require.Zero(t, f.gateway.calls)
	payout := f.payout(t, payoutID)
	require.Equal(t, ledgerdomain.PayoutStatusPending, payout.Status)
	acct := f.account(t, creator)
	require.InDelta(t, 100, acct.TotalEarnings, 1e-9)

	var auditCount int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM audit_logs WHERE action = ?`, "payout.approved",
	).Scan(&auditCount).Error)
	require.EqualValues(t, 0, auditCount)
}

func TestStaleClaimIsStolenOnRedelivery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, subscriber, creator, nil, 12, "pi_stale")

	// A crashed attempt left its claim behind, older than the lease.
	stale := f.clock.Now().Add(-5 * time.Minute)
	require.NoError(t, f.db.Create(&domain.EventRecord{
		ID:              f.node.Generate(),
		Provider:        "stripe",
		ProviderEventID: "evt_stale",
		Kind:            domain.KindChargeSucceeded,
		ReceivedAt:      stale,
		AttemptedAt:     &stale,
	}).Error)

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_stale", "pi_stale", 12)))

	acct := f.account(t, creator)
	require.InDelta(t, 12, acct.TotalEarnings, 1e-9)
}

func TestConcurrentSettlementsCreditOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	subscriber := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, subscriber, creator, nil, 9.99, "pi_conc")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, eventID := range []string{"evt_conc_a", "evt_conc_b"} {
		wg.Add(1)
		go func(slot int, id string) {
			defer wg.Done()
			errs[slot] = f.svc.Apply(ctx, chargeEvent(id, "pi_conc", 9.99))
		}(i, eventID)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	tx := f.transaction(t, "pi_conc")
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, tx.Status)
	acct := f.account(t, creator)
	require.InDelta(t, 9.99, acct.TotalEarnings, 1e-9)
	require.InDelta(t, 9.99, acct.MonthlyEarnings, 1e-9)
}

func TestSubscriptionApprovalEnablesCreator(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := f.seedAccount(t, accountdomain.RoleAdmin, 0)
	creator := f.seedAccount(t, accountdomain.RoleSubscriber, 0)

	err := f.svc.Apply(ctx, &domain.ReconcileEvent{
		Kind:            domain.KindAdminApproved,
		Provider:        "admin",
		ProviderEventID: "review-3-approved",
		SubjectType:     domain.SubjectSubscriptionApproval,
		SubjectID:       creator,
		AdminID:         admin,
	})
	require.NoError(t, err)

	acct := f.account(t, creator)
	require.True(t, acct.SubscriptionEnabled)
}

func TestReceiptSettlementActivatesPlatformMembership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	member := f.seedAccount(t, accountdomain.RoleSubscriber, 0)

	event := &domain.ReconcileEvent{
		Kind:            domain.KindChargeSucceeded,
		Provider:        "appstore",
		ProviderEventID: "receipt-1000000123",
		ExternalID:      "1000000123",
		SubjectType:     domain.SubjectPlatformMembership,
		SubjectID:       member,
		Tier:            "premium",
	}
	require.NoError(t, f.svc.Apply(ctx, event))

	acct := f.account(t, member)
	require.Equal(t, "active", acct.PlatformSubscriptionStatus)
	require.Equal(t, "premium", acct.PlatformSubscriptionTier)

	err := f.svc.Apply(ctx, event)
	require.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
}

func TestReceiptSettlementWithoutTierChangesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	member := f.seedAccount(t, accountdomain.RoleSubscriber, 0)

	require.NoError(t, f.svc.Apply(ctx, &domain.ReconcileEvent{
		Kind:            domain.KindChargeSucceeded,
		Provider:        "appstore",
		ProviderEventID: "receipt-1000000999",
		ExternalID:      "1000000999",
		SubjectType:     domain.SubjectPlatformMembership,
		SubjectID:       member,
	}))

	acct := f.account(t, member)
	require.Empty(t, acct.PlatformSubscriptionStatus)
	require.Empty(t, acct.PlatformSubscriptionTier)
}

func TestTipSettlementCreditsFractionalAmount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedAccount(t, accountdomain.RoleCreator, 0)
	supporter := f.seedAccount(t, accountdomain.RoleSubscriber, 0)
	f.seedTransaction(t, ledgerdomain.TransactionTypeTip, supporter, creator, nil, 15.5, "pi_155")

	require.NoError(t, f.svc.Apply(ctx, chargeEvent("evt_155", "pi_155", 15.5)))

	acct := f.account(t, creator)
	require.InDelta(t, 15.5, acct.TotalEarnings, 1e-9)
	require.InDelta(t, 15.5, acct.MonthlyEarnings, 1e-9)
}
