// Package domain contains persistence models for monetary movements:
// transactions and payout requests.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeTip          TransactionType = "tip"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether a transaction status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is an immutable record of one monetary movement. Status is the
// only mutable field and is set exactly once to a terminal value; the unique
// constraint on ExternalPaymentID is what makes settlement idempotent.
type Transaction struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Type              TransactionType   `json:"transaction_type" gorm:"column:transaction_type;type:text;not null"`
	Status            TransactionStatus `json:"status" gorm:"type:text;not null"`
	Amount            float64           `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	SubscriberID      snowflake.ID      `json:"subscriber_id" gorm:"not null;index"`
	CreatorID         snowflake.ID      `json:"creator_id" gorm:"not null;index"`
	SubscriptionID    *snowflake.ID     `json:"subscription_id" gorm:"index"`
	ExternalPaymentID string            `json:"external_payment_id" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// PayoutRequest is a creator-initiated withdrawal. ExternalPayoutID is set
// once the gateway accepts the payout.
type PayoutRequest struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID        snowflake.ID `json:"creator_id" gorm:"not null;index"`
	Amount           float64      `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency         string       `json:"currency" gorm:"type:text;not null"`
	Status           PayoutStatus `json:"status" gorm:"type:text;not null"`
	ExternalPayoutID *string      `json:"external_payout_id" gorm:"type:text"`
	AdminNotes       *string      `json:"admin_notes" gorm:"type:text"`
	RequestedAt      time.Time    `json:"requested_at" gorm:"not null"`
	ProcessedAt      *time.Time   `json:"processed_at"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

var (
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrPayoutNotFound      = errors.New("payout_request_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrDuplicatePayment    = errors.New("duplicate_external_payment_id")
)
