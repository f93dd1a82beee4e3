package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertTransaction inserts with ON CONFLICT DO NOTHING on
	// external_payment_id; the bool reports whether this call inserted.
	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)

	FindTransactionByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Transaction, error)

	// SettleTransaction conditionally flips a pending transaction to the given
	// terminal status; rows-affected tells the caller whether it won the race.
	SettleTransaction(ctx context.Context, db *gorm.DB, externalID string, status TransactionStatus, now time.Time) (bool, error)

	InsertPayoutRequest(ctx context.Context, db *gorm.DB, req *PayoutRequest) error
	FindPayoutRequest(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutRequest, error)
	ListPayoutRequests(ctx context.Context, db *gorm.DB, status PayoutStatus, limit int) ([]*PayoutRequest, error)

	// MarkPayoutProcessing advances pending → processing and records the
	// gateway payout id; rows-affected semantics as above.
	MarkPayoutProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, externalPayoutID string, now time.Time) (bool, error)

	SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PayoutStatus, now time.Time) (bool, error)
}
