package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateTipResponse carries the pending transaction plus the gateway client
// secret the supporter needs to complete payment.
type CreateTipResponse struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	ClientSecret  string       `json:"client_secret"`
}

type Service interface {
	// CreateTip records a pending one-off payment from a supporter to a
	// creator and asks the gateway for a payment intent.
	CreateTip(ctx context.Context, subscriberID, creatorID snowflake.ID, amount float64, currency string) (*CreateTipResponse, error)

	// RequestPayout validates the creator's balance and records a pending
	// withdrawal. Nothing moves until an admin approves it.
	RequestPayout(ctx context.Context, creatorID snowflake.ID, amount float64, currency string) (*PayoutRequest, error)

	GetPayout(ctx context.Context, id snowflake.ID) (*PayoutRequest, error)
	ListPayouts(ctx context.Context, status PayoutStatus, limit int) ([]*PayoutRequest, error)
}
