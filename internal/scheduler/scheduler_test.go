package scheduler_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fanbase/internal/clock"
	"github.com/smallbiznis/fanbase/internal/scheduler"
	"github.com/smallbiznis/fanbase/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/fanbase/internal/subscription/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	sched *scheduler.Scheduler
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

	require.NoError(t, db.Exec(`CREATE TABLE subscriptions (
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
	)`).Error)

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	sched, err := scheduler.New(scheduler.Params{
		DB:      db,
		Log:     zap.NewNop(),
		SubRepo: subscriptionrepo.Provide(),
		Clock:   fakeClock,
		Config:  scheduler.Config{BatchSize: 2},
	})
	require.NoError(t, err)

	return &fixture{db: db, node: node, clock: fakeClock, sched: sched}
}

func (f *fixture) seedSubscription(t *testing.T, status domain.SubscriptionStatus, endDate *time.Time) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO subscriptions (
			id, subscriber_id, creator_id, plan_id, status, start_date,
			end_date, external_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), f.node.Generate(), f.node.Generate(),
		status, now.AddDate(0, 0, -60), endDate, id.String(), now, now,
	).Error)
	return id
}

func (f *fixture) status(t *testing.T, id snowflake.ID) domain.SubscriptionStatus {
	t.Helper()

	var status string
	require.NoError(t, f.db.Raw(
		`SELECT status FROM subscriptions WHERE id = ?`, id,
	).Scan(&status).Error)
	return domain.SubscriptionStatus(status)
}

func timePtr(v time.Time) *time.Time { return &v }

func TestExpireLapsedSubscriptions(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()

	lapsed := f.seedSubscription(t, domain.SubscriptionStatusActive, timePtr(now.AddDate(0, 0, -1)))
	current := f.seedSubscription(t, domain.SubscriptionStatusActive, timePtr(now.AddDate(0, 0, 10)))
	openEnded := f.seedSubscription(t, domain.SubscriptionStatusActive, nil)
	cancelled := f.seedSubscription(t, domain.SubscriptionStatusCancelled, timePtr(now.AddDate(0, 0, -5)))

	require.NoError(t, f.sched.ExpireLapsedSubscriptions(context.Background()))

	require.Equal(t, domain.SubscriptionStatusExpired, f.status(t, lapsed))
	require.Equal(t, domain.SubscriptionStatusActive, f.status(t, current))
	require.Equal(t, domain.SubscriptionStatusActive, f.status(t, openEnded))
	require.Equal(t, domain.SubscriptionStatusCancelled, f.status(t, cancelled))
}

func TestExpireLapsedDrainsBeyondBatchSize(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()

	var ids []snowflake.ID
	for i := 0; i < 5; i++ {
		ids = append(ids, f.seedSubscription(t, domain.SubscriptionStatusActive, timePtr(now.AddDate(0, 0, -1-i))))
	}

	require.NoError(t, f.sched.ExpireLapsedSubscriptions(context.Background()))

	for _, id := range ids {
		require.Equal(t, domain.SubscriptionStatusExpired, f.status(t, id))
	}
}
