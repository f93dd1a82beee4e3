package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateReviewRequest struct {
	Kind        ReviewKind
	Priority    Priority
	SubjectID   snowflake.ID
	RequesterID snowflake.ID
	Notes       string
}

type ReportIssueRequest struct {
	Kind          string
	AccountID     snowflake.ID
	TransactionID *snowflake.ID
	Description   string
	Priority      Priority
}

type Service interface {
	CreateReviewRequest(ctx context.Context, req CreateReviewRequest) (*PaymentReviewRequest, error)

	// ListPending returns undecided requests ordered urgent first, newest
	// first within the same priority.
	ListPending(ctx context.Context, kind ReviewKind, limit int) ([]*PaymentReviewRequest, error)

	// Approve applies the approved outcome and then marks the request
	// decided. Deciding an already-decided request fails. Admin notes are
	// required on every disposition.
	Approve(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error
	Reject(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error

	// MarkUnderReview records that an admin is holding the request. No event
	// is dispatched; the request can still be approved or rejected.
	MarkUnderReview(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error

	GetReview(ctx context.Context, id snowflake.ID) (*PaymentReviewRequest, error)

	ReportIssue(ctx context.Context, req ReportIssueRequest) (*PaymentIssue, error)

	// UpdateIssueStatus moves an issue between open, under_review and
	// resolved. The first move to resolved stamps resolved_at; later updates
	// never change it.
	UpdateIssueStatus(ctx context.Context, issueID snowflake.ID, status IssueStatus) error
	ResolveIssue(ctx context.Context, issueID snowflake.ID) error
	ListIssues(ctx context.Context, status IssueStatus, limit int) ([]*PaymentIssue, error)
}

type Repository interface {
	InsertReview(ctx context.Context, db *gorm.DB, req *PaymentReviewRequest) error
	FindReview(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentReviewRequest, error)
	ListPendingReviews(ctx context.Context, db *gorm.DB, kind ReviewKind, limit int) ([]*PaymentReviewRequest, error)

	// Decide flips an undecided request to the given terminal status and
	// records the deciding admin; rows-affected reports whether this call won.
	Decide(ctx context.Context, db *gorm.DB, id snowflake.ID, status ReviewStatus, adminID snowflake.ID, notes *string, now time.Time) (bool, error)

	// MarkUnderReview parks an undecided request with an admin without
	// writing decided_at.
	MarkUnderReview(ctx context.Context, db *gorm.DB, id snowflake.ID, adminID snowflake.ID, notes *string, now time.Time) (bool, error)

	InsertIssue(ctx context.Context, db *gorm.DB, issue *PaymentIssue) error
	FindIssue(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIssue, error)

	// ResolveIssue flips status to resolved and sets resolved_at only when it
	// is still null.
	ResolveIssue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// SetIssueStatus writes a non-resolved status and leaves resolved_at
	// untouched.
	SetIssueStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status IssueStatus, now time.Time) (bool, error)

	ListIssues(ctx context.Context, db *gorm.DB, status IssueStatus, limit int) ([]*PaymentIssue, error)
}
