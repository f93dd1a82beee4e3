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
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fanbase/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/fanbase/internal/ledger/service"
	"github.com/smallbiznis/fanbase/internal/payment/gateway"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayStub struct {
	intentID string
	calls    int
}

func (g *gatewayStub) CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.calls++
	return &gateway.Intent{ID: g.intentID, ClientSecret: "cs_" + g.intentID}, nil
}

func (g *gatewayStub) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Payout, error) {
	return nil, nil
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
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	gw := &gatewayStub{intentID: "pi_tip"}

	svc := ledgerservice.NewService(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        ledgerrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		Gateway:     gw,
	})

	return &fixture{db: db, node: node, clock: fakeClock, gateway: gw, svc: svc}
}

func (f *fixture) seedCreator(t *testing.T, earnings float64) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&accountdomain.Account{
		ID:            id,
		DisplayName:   "creator",
		Role:          accountdomain.RoleCreator,
		TotalEarnings: earnings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)
	return id
}

func TestCreateTipInsertsPendingTransaction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, 0)
	subscriber := f.node.Generate()

	resp, err := f.svc.CreateTip(ctx, subscriber, creator, 5.5, "USD")
	require.NoError(t, err)
	require.Equal(t, "cs_pi_tip", resp.ClientSecret)

	var tx domain.Transaction
	require.NoError(t, f.db.Raw(
		`SELECT * FROM transactions WHERE id = ?`, resp.TransactionID,
	).Scan(&tx).Error)
	require.Equal(t, domain.TransactionTypeTip, tx.Type)
	require.Equal(t, domain.TransactionStatusPending, tx.Status)
	require.InDelta(t, 5.5, tx.Amount, 1e-9)
	require.Nil(t, tx.SubscriptionID)
}

func TestCreateTipRejectsNonPositiveAmount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CreateTip(context.Background(), f.node.Generate(), f.node.Generate(), 0, "USD")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Zero(t, f.gateway.calls)
}

func TestRequestPayoutRequiresSufficientEarnings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, 40)

	_, err := f.svc.RequestPayout(ctx, creator, 50, "USD")
	require.ErrorIs(t, err, accountdomain.ErrInsufficientEarnings)

	req, err := f.svc.RequestPayout(ctx, creator, 40, "USD")
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusPending, req.Status)

	stored, err := f.svc.GetPayout(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, stored.ID)
	require.InDelta(t, 40, stored.Amount, 1e-9)
}

func TestListPayoutsFiltersByStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	creator := f.seedCreator(t, 100)
	first, err := f.svc.RequestPayout(ctx, creator, 10, "USD")
	require.NoError(t, err)
	_, err = f.svc.RequestPayout(ctx, creator, 20, "USD")
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(
		`UPDATE payout_requests SET status = ? WHERE id = ?`,
		domain.PayoutStatusCompleted, first.ID,
	).Error)

	pending, err := f.svc.ListPayouts(ctx, domain.PayoutStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.InDelta(t, 20, pending[0].Amount, 1e-9)

	all, err := f.svc.ListPayouts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
