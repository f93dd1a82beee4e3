package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrCreatorDisabled      = errors.New("creator_subscriptions_disabled")
	ErrInvalidAmount        = errors.New("invalid_amount")
)

// CreateSubscriptionResponse carries the pending records plus the gateway
// client secret the caller needs to complete payment.
type CreateSubscriptionResponse struct {
	Subscription  *Subscription `json:"subscription"`
	TransactionID snowflake.ID  `json:"transaction_id"`
	ClientSecret  string        `json:"client_secret"`
}

type Service interface {
	// Subscribe creates a pending subscription and its pending transaction,
	// then asks the gateway for a payment intent.
	Subscribe(ctx context.Context, subscriberID, planID snowflake.ID) (*CreateSubscriptionResponse, error)

	Cancel(ctx context.Context, subscriptionID snowflake.ID) error

	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
}

type Repository interface {
	FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	HasOpenSubscription(ctx context.Context, db *gorm.DB, subscriberID, creatorID snowflake.ID) (bool, error)

	// Activate flips a pending subscription to active; rows-affected reports
	// whether this call won the transition.
	Activate(ctx context.Context, db *gorm.DB, externalID string, endDate time.Time, now time.Time) (bool, error)

	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	CancelByExternalID(ctx context.Context, db *gorm.DB, externalID string, now time.Time) (bool, error)

	// ExtendEndDate pushes end_date forward by the plan's billing interval.
	ExtendEndDate(ctx context.Context, db *gorm.DB, id snowflake.ID, days int, now time.Time) error

	// ExpireLapsed flips active subscriptions whose end_date has passed to
	// expired, at most limit rows per call.
	ExpireLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
}
