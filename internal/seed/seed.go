// Package seed bootstraps the minimum data a self-hosted install needs.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/fanbase/internal/account/domain"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Platform Admin"

// EnsureAdminAccount creates the default admin account when no admin exists
// yet. Review decisions require an admin actor, so a fresh install gets one.
func EnsureAdminAccount(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Raw(
			`SELECT COUNT(1) FROM accounts WHERE role = ?`, accountdomain.RoleAdmin,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		return tx.Exec(`
			INSERT INTO accounts (id, display_name, role, total_earnings, monthly_earnings, subscription_enabled, created_at, updated_at)
			VALUES (?, ?, ?, 0, 0, FALSE, ?, ?)
		`, node.Generate(), defaultAdminDisplay, accountdomain.RoleAdmin, now, now).Error
	})
}
