// Package domain contains persistence models for plans and subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
)

// Plan is a creator-defined subscription offering.
type Plan struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID    snowflake.ID `json:"creator_id" gorm:"not null;index"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Amount       float64      `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency     string       `json:"currency" gorm:"type:text;not null"`
	IntervalDays int          `json:"interval_days" gorm:"not null"`
	Active       bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// Subscription captures a subscriber's agreement with a creator's plan.
// ExternalPaymentID is the gateway identifier and the idempotency key for
// payment events targeting this subscription.
type Subscription struct {
	ID                snowflake.ID       `json:"id" gorm:"primaryKey"`
	SubscriberID      snowflake.ID       `json:"subscriber_id" gorm:"not null;index"`
	CreatorID         snowflake.ID       `json:"creator_id" gorm:"not null;index"`
	PlanID            snowflake.ID       `json:"plan_id" gorm:"not null;index"`
	Status            SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	StartDate         time.Time          `json:"start_date" gorm:"not null"`
	EndDate           *time.Time         `json:"end_date"`
	ExternalPaymentID string             `json:"external_payment_id" gorm:"type:text;uniqueIndex"`
	CreatedAt         time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }
