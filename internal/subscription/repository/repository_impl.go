package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var item domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, name, amount, currency, interval_days, active,
			created_at, updated_at
		 FROM plans
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPlanNotFound
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, subscriber_id, creator_id, plan_id, status, start_date,
			end_date, external_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.SubscriberID,
		sub.CreatorID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.ExternalPaymentID,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `WHERE id = ?`, id)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `WHERE external_payment_id = ?`, externalID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscriber_id, creator_id, plan_id, status, start_date,
			end_date, external_payment_id, created_at, updated_at
		 FROM subscriptions `+where+` LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) HasOpenSubscription(ctx context.Context, db *gorm.DB, subscriberID, creatorID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM subscriptions
		 WHERE subscriber_id = ? AND creator_id = ? AND status IN (?, ?, ?)`,
		subscriberID,
		creatorID,
		domain.SubscriptionStatusPending,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusTrial,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, externalID string, endDate time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, end_date = ?, updated_at = ?
		 WHERE external_payment_id = ? AND status IN (?, ?)`,
		domain.SubscriptionStatusActive,
		endDate,
		now,
		externalID,
		domain.SubscriptionStatusPending,
		domain.SubscriptionStatusTrial,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		domain.SubscriptionStatusCancelled,
		now,
		id,
		domain.SubscriptionStatusCancelled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CancelByExternalID(ctx context.Context, db *gorm.DB, externalID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE external_payment_id = ? AND status != ?`,
		domain.SubscriptionStatusCancelled,
		now,
		externalID,
		domain.SubscriptionStatusCancelled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExtendEndDate(ctx context.Context, db *gorm.DB, id snowflake.ID, days int, now time.Time) error {
	var current domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, end_date FROM subscriptions WHERE id = ? LIMIT 1`,
		id,
	).Scan(&current).Error
	if err != nil {
		return err
	}
	if current.ID == 0 {
		return domain.ErrSubscriptionNotFound
	}

	base := now
	if current.EndDate != nil && current.EndDate.After(now) {
		base = *current.EndDate
	}
	next := base.AddDate(0, 0, days)

	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET end_date = ?, updated_at = ?
		 WHERE id = ?`,
		next,
		now,
		id,
	).Error
}

func (r *repo) ExpireLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status = ? AND end_date IS NOT NULL AND end_date < ?
			LIMIT ?
		 )`,
		domain.SubscriptionStatusExpired,
		now,
		domain.SubscriptionStatusActive,
		now,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
