// Package domain contains persistence models for platform accounts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Role string

const (
	RoleCreator    Role = "creator"
	RoleSubscriber Role = "subscriber"
	RoleAdmin      Role = "admin"
)

// Account is a user acting as creator and/or subscriber. Earnings balances
// are mutated only through Repository credit/debit operations.
type Account struct {
	ID                         snowflake.ID `json:"id" gorm:"primaryKey"`
	DisplayName                string       `json:"display_name" gorm:"type:text;not null"`
	Role                       Role         `json:"role" gorm:"type:text;not null"`
	TotalEarnings              float64      `json:"total_earnings" gorm:"type:numeric(12,2);not null;default:0"`
	MonthlyEarnings            float64      `json:"monthly_earnings" gorm:"type:numeric(12,2);not null;default:0"`
	SubscriptionEnabled        bool         `json:"subscription_enabled" gorm:"not null;default:false"`
	PlatformSubscriptionStatus string       `json:"platform_subscription_status" gorm:"type:text"`
	PlatformSubscriptionTier   string       `json:"platform_subscription_tier" gorm:"type:text"`
	CreatedAt                  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt                  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

var (
	ErrNotFound             = errors.New("account_not_found")
	ErrInsufficientEarnings = errors.New("insufficient_earnings")
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)

	// CreditEarnings adds amount to both earnings balances with a single
	// additive UPDATE evaluated at the store.
	CreditEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) error

	// DebitEarnings subtracts amount from total_earnings only when the balance
	// covers it; returns false when the guard fails.
	DebitEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) (bool, error)

	EnableSubscriptions(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	SetPlatformSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status, tier string, now time.Time) error
}
