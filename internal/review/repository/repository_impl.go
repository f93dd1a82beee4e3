package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fanbase/internal/review/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertReview(ctx context.Context, db *gorm.DB, req *domain.PaymentReviewRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_review_requests (
			id, kind, status, priority, subject_id, requester_id, notes,
			admin_id, admin_notes, decided_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.Kind,
		req.Status,
		req.Priority,
		req.SubjectID,
		req.RequesterID,
		req.Notes,
		req.AdminID,
		req.AdminNotes,
		req.DecidedAt,
		req.CreatedAt,
		req.UpdatedAt,
	).Error
}

func (r *repo) FindReview(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentReviewRequest, error) {
	var item domain.PaymentReviewRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, status, priority, subject_id, requester_id, notes,
			admin_id, admin_notes, decided_at, created_at, updated_at
		 FROM payment_review_requests
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrReviewNotFound
	}
	return &item, nil
}

func (r *repo) ListPendingReviews(ctx context.Context, db *gorm.DB, kind domain.ReviewKind, limit int) ([]*domain.PaymentReviewRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, status, priority, subject_id, requester_id, notes,
			admin_id, admin_notes, decided_at, created_at, updated_at
		 FROM payment_review_requests
		 WHERE status = ?`
	args := []any{domain.ReviewStatusPending}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY CASE priority
			WHEN 'urgent' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	var items []*domain.PaymentReviewRequest
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Decide(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ReviewStatus, adminID snowflake.ID, notes *string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_review_requests
		 SET status = ?, admin_id = ?, admin_notes = ?, decided_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		status,
		adminID,
		notes,
		now,
		now,
		id,
		domain.ReviewStatusPending,
		domain.ReviewStatusUnderReview,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkUnderReview(ctx context.Context, db *gorm.DB, id snowflake.ID, adminID snowflake.ID, notes *string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_review_requests
		 SET status = ?, admin_id = ?, admin_notes = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.ReviewStatusUnderReview,
		adminID,
		notes,
		now,
		id,
		domain.ReviewStatusPending,
		domain.ReviewStatusUnderReview,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertIssue(ctx context.Context, db *gorm.DB, issue *domain.PaymentIssue) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_issues (
			id, kind, account_id, transaction_id, description,
			priority, status, resolved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID,
		issue.Kind,
		issue.AccountID,
		issue.Transaction,
		issue.Description,
		issue.Priority,
		issue.Status,
		issue.ResolvedAt,
		issue.CreatedAt,
		issue.UpdatedAt,
	).Error
}

func (r *repo) FindIssue(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentIssue, error) {
	var item domain.PaymentIssue
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, account_id, transaction_id, description,
			priority, status, resolved_at, created_at, updated_at
		 FROM payment_issues
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrIssueNotFound
	}
	return &item, nil
}

func (r *repo) ResolveIssue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_issues
		 SET status = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ? AND resolved_at IS NULL`,
		domain.IssueStatusResolved,
		now,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetIssueStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.IssueStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_issues
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListIssues(ctx context.Context, db *gorm.DB, status domain.IssueStatus, limit int) ([]*domain.PaymentIssue, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt := db.WithContext(ctx).Model(&domain.PaymentIssue{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var items []*domain.PaymentIssue
	err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
