package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, transaction_type, status, amount, currency, subscriber_id,
			creator_id, subscription_id, external_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_payment_id) DO NOTHING`,
		tx.ID,
		tx.Type,
		tx.Status,
		tx.Amount,
		tx.Currency,
		tx.SubscriberID,
		tx.CreatorID,
		tx.SubscriptionID,
		tx.ExternalPaymentID,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindTransactionByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_type, status, amount, currency, subscriber_id,
			creator_id, subscription_id, external_payment_id, created_at, updated_at
		 FROM transactions
		 WHERE external_payment_id = ?
		 LIMIT 1`,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SettleTransaction(ctx context.Context, db *gorm.DB, externalID string, status domain.TransactionStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, updated_at = ?
		 WHERE external_payment_id = ? AND status = ?`,
		status,
		now,
		externalID,
		domain.TransactionStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertPayoutRequest(ctx context.Context, db *gorm.DB, req *domain.PayoutRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_requests (
			id, creator_id, amount, currency, status, external_payout_id,
			admin_notes, requested_at, processed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.CreatorID,
		req.Amount,
		req.Currency,
		req.Status,
		req.ExternalPayoutID,
		req.AdminNotes,
		req.RequestedAt,
		req.ProcessedAt,
		req.UpdatedAt,
	).Error
}

func (r *repo) FindPayoutRequest(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PayoutRequest, error) {
	var item domain.PayoutRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, amount, currency, status, external_payout_id,
			admin_notes, requested_at, processed_at, updated_at
		 FROM payout_requests
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPayoutNotFound
	}
	return &item, nil
}

func (r *repo) ListPayoutRequests(ctx context.Context, db *gorm.DB, status domain.PayoutStatus, limit int) ([]*domain.PayoutRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt := db.WithContext(ctx).Model(&domain.PayoutRequest{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var items []*domain.PayoutRequest
	err := stmt.Order("requested_at desc, id desc").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPayoutProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, externalPayoutID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_requests
		 SET status = ?, external_payout_id = ?, processed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusProcessing,
		externalPayoutID,
		now,
		now,
		id,
		domain.PayoutStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.PayoutStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_requests
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
