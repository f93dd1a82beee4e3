package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var item domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, role, total_earnings, monthly_earnings,
			subscription_enabled, platform_subscription_status,
			platform_subscription_tier, created_at, updated_at
		 FROM accounts
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) CreditEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_earnings = total_earnings + ?,
		     monthly_earnings = monthly_earnings + ?,
		     updated_at = ?
		 WHERE id = ?`,
		amount,
		amount,
		now,
		id,
	).Error
}

func (r *repo) DebitEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET total_earnings = total_earnings - ?,
		     updated_at = ?
		 WHERE id = ? AND total_earnings >= ?`,
		amount,
		now,
		id,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) EnableSubscriptions(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET subscription_enabled = TRUE,
		     updated_at = ?
		 WHERE id = ?`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetPlatformSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status, tier string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET platform_subscription_status = ?,
		     platform_subscription_tier = ?,
		     updated_at = ?
		 WHERE id = ?`,
		status,
		tier,
		now,
		id,
	).Error
}
