// Package domain contains the admin review queue: payout and subscription
// approval requests awaiting a decision, plus flagged payment issues.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReviewKind string

const (
	ReviewKindPayout               ReviewKind = "payout"
	ReviewKindSubscriptionApproval ReviewKind = "subscription_approval"
)

type ReviewStatus string

const (
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusUnderReview parks a request with an admin: the disposition
	// is recorded and audited, but nothing is dispatched to the engine and the
	// request can still be approved or rejected later.
	ReviewStatusUnderReview ReviewStatus = "under_review"
	ReviewStatusApproved    ReviewStatus = "approved"
	ReviewStatusRejected    ReviewStatus = "rejected"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// PaymentReviewRequest is one item in the admin queue. SubjectID points at
// the payout request for payout reviews and at the creator account for
// subscription approvals. The decision fields are written exactly once.
type PaymentReviewRequest struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	Kind        ReviewKind    `json:"kind" gorm:"type:text;not null"`
	Status      ReviewStatus  `json:"status" gorm:"type:text;not null"`
	Priority    Priority      `json:"priority" gorm:"type:text;not null"`
	SubjectID   snowflake.ID  `json:"subject_id" gorm:"not null;index"`
	RequesterID snowflake.ID  `json:"requester_id" gorm:"not null;index"`
	Notes       *string       `json:"notes" gorm:"type:text"`
	AdminID     *snowflake.ID `json:"admin_id"`
	AdminNotes  *string       `json:"admin_notes" gorm:"type:text"`
	DecidedAt   *time.Time    `json:"decided_at"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null"`
}

func (PaymentReviewRequest) TableName() string { return "payment_review_requests" }

type IssueStatus string

const (
	IssueStatusOpen        IssueStatus = "open"
	IssueStatusUnderReview IssueStatus = "under_review"
	IssueStatusResolved    IssueStatus = "resolved"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusUnderReview, IssueStatusResolved:
		return true
	}
	return false
}

// PaymentIssue is a flagged anomaly tied to an account or transaction.
// ResolvedAt is stamped on the first transition to resolved and never
// touched by later status updates.
type PaymentIssue struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	Kind        string        `json:"kind" gorm:"type:text;not null"`
	AccountID   snowflake.ID  `json:"account_id" gorm:"not null;index"`
	Transaction *snowflake.ID `json:"transaction_id" gorm:"column:transaction_id;index"`
	Description string        `json:"description" gorm:"type:text;not null"`
	Priority    Priority      `json:"priority" gorm:"type:text;not null"`
	Status      IssueStatus   `json:"status" gorm:"type:text;not null"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null"`
}

func (PaymentIssue) TableName() string { return "payment_issues" }

var (
	ErrReviewNotFound       = errors.New("review_request_not_found")
	ErrReviewAlreadyDecided = errors.New("review_request_already_decided")
	ErrIssueNotFound        = errors.New("payment_issue_not_found")
	ErrIssueAlreadyResolved = errors.New("payment_issue_already_resolved")
	ErrInvalidKind          = errors.New("invalid_review_kind")
	ErrInvalidPriority      = errors.New("invalid_priority")
	ErrInvalidDescription   = errors.New("invalid_description")
	ErrInvalidNotes         = errors.New("invalid_notes")
	ErrInvalidIssueStatus   = errors.New("invalid_issue_status")
)
