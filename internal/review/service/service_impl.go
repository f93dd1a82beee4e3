package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/internal/clock"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
	"github.com/smallbiznis/fanbase/internal/review/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Reconcile paymentdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	reconcile paymentdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("review.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		reconcile: p.Reconcile,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) CreateReviewRequest(ctx context.Context, req domain.CreateReviewRequest) (*domain.PaymentReviewRequest, error) {
	switch req.Kind {
	case domain.ReviewKindPayout, domain.ReviewKindSubscriptionApproval:
	default:
		return nil, domain.ErrInvalidKind
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, domain.ErrInvalidPriority
	}

	now := s.clock.Now()
	item := &domain.PaymentReviewRequest{
		ID:          s.genID.Generate(),
		Kind:        req.Kind,
		Status:      domain.ReviewStatusPending,
		Priority:    req.Priority,
		SubjectID:   req.SubjectID,
		RequesterID: req.RequesterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		item.Notes = &notes
	}

	if err := s.repo.InsertReview(ctx, s.db, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) ListPending(ctx context.Context, kind domain.ReviewKind, limit int) ([]*domain.PaymentReviewRequest, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.ListPendingReviews(ctx, s.db, kind, limit)
}

// Approve applies the approved outcome through the reconciliation service
// and only then marks the request decided. The synthetic event id is derived
// from the review id, so a retried approval dedupes like a redelivered
// webhook.
func (s *Service) Approve(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.ErrInvalidNotes
	}

	review, err := s.repo.FindReview(ctx, s.db, reviewID)
	if err != nil {
		return err
	}
	if decided(review.Status) {
		return domain.ErrReviewAlreadyDecided
	}

	event, err := s.buildEvent(review, paymentdomain.KindAdminApproved, adminID, notes)
	if err != nil {
		return err
	}
	if err := s.reconcile.Apply(ctx, event); err != nil &&
		!errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		return err
	}

	return s.decide(ctx, review.ID, domain.ReviewStatusApproved, adminID, notes)
}

func (s *Service) Reject(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.ErrInvalidNotes
	}

	review, err := s.repo.FindReview(ctx, s.db, reviewID)
	if err != nil {
		return err
	}
	if decided(review.Status) {
		return domain.ErrReviewAlreadyDecided
	}

	event, err := s.buildEvent(review, paymentdomain.KindAdminRejected, adminID, notes)
	if err != nil {
		return err
	}
	if err := s.reconcile.Apply(ctx, event); err != nil &&
		!errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		return err
	}

	return s.decide(ctx, review.ID, domain.ReviewStatusRejected, adminID, notes)
}

// MarkUnderReview records the hold and audits it. Nothing reaches the
// engine; the request stays eligible for a later approve or reject.
func (s *Service) MarkUnderReview(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.ErrInvalidNotes
	}

	review, err := s.repo.FindReview(ctx, s.db, reviewID)
	if err != nil {
		return err
	}
	if decided(review.Status) {
		return domain.ErrReviewAlreadyDecided
	}

	won, err := s.repo.MarkUnderReview(ctx, s.db, review.ID, adminID, &notes, s.clock.Now())
	if err != nil {
		return err
	}
	if !won {
		return domain.ErrReviewAlreadyDecided
	}

	s.writeAdminAuditLog(ctx, adminID, "review.under_review", review.ID, map[string]any{
		"previous_status": string(review.Status),
		"new_status":      string(domain.ReviewStatusUnderReview),
		"notes":           notes,
	})
	return nil
}

func decided(status domain.ReviewStatus) bool {
	return status != domain.ReviewStatusPending && status != domain.ReviewStatusUnderReview
}

func (s *Service) GetReview(ctx context.Context, id snowflake.ID) (*domain.PaymentReviewRequest, error) {
	return s.repo.FindReview(ctx, s.db, id)
}

func (s *Service) ReportIssue(ctx context.Context, req domain.ReportIssueRequest) (*domain.PaymentIssue, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, domain.ErrInvalidDescription
	}

	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, domain.ErrInvalidPriority
	}

	now := s.clock.Now()
	issue := &domain.PaymentIssue{
		ID:          s.genID.Generate(),
		Kind:        strings.TrimSpace(req.Kind),
		AccountID:   req.AccountID,
		Transaction: req.TransactionID,
		Description: description,
		Priority:    req.Priority,
		Status:      domain.IssueStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if issue.Kind == "" {
		issue.Kind = "other"
	}

	if err := s.repo.InsertIssue(ctx, s.db, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *Service) UpdateIssueStatus(ctx context.Context, issueID snowflake.ID, status domain.IssueStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidIssueStatus
	}
	if _, err := s.repo.FindIssue(ctx, s.db, issueID); err != nil {
		return err
	}

	if status == domain.IssueStatusResolved {
		resolved, err := s.repo.ResolveIssue(ctx, s.db, issueID, s.clock.Now())
		if err != nil {
			return err
		}
		if !resolved {
			return domain.ErrIssueAlreadyResolved
		}
		return nil
	}

	// Non-resolved updates never touch resolved_at.
	changed, err := s.repo.SetIssueStatus(ctx, s.db, issueID, status, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrIssueNotFound
	}
	return nil
}

func (s *Service) ResolveIssue(ctx context.Context, issueID snowflake.ID) error {
	return s.UpdateIssueStatus(ctx, issueID, domain.IssueStatusResolved)
}

func (s *Service) ListIssues(ctx context.Context, status domain.IssueStatus, limit int) ([]*domain.PaymentIssue, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.ListIssues(ctx, s.db, status, limit)
}

func (s *Service) buildEvent(review *domain.PaymentReviewRequest, kind string, adminID snowflake.ID, notes string) (*paymentdomain.ReconcileEvent, error) {
	var subjectType string
	switch review.Kind {
	case domain.ReviewKindPayout:
		subjectType = paymentdomain.SubjectPayoutRequest
	case domain.ReviewKindSubscriptionApproval:
		subjectType = paymentdomain.SubjectSubscriptionApproval
	default:
		return nil, domain.ErrInvalidKind
	}

	return &paymentdomain.ReconcileEvent{
		Kind:            kind,
		Provider:        "admin",
		ProviderEventID: fmt.Sprintf("review-%s-%s", review.ID, kind),
		SubjectType:     subjectType,
		SubjectID:       review.SubjectID,
		AdminID:         adminID,
		Notes:           strings.TrimSpace(notes),
		OccurredAt:      s.clock.Now(),
	}, nil
}

func (s *Service) decide(ctx context.Context, id snowflake.ID, status domain.ReviewStatus, adminID snowflake.ID, notes string) error {
	var adminNotes *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		adminNotes = &trimmed
	}

	won, err := s.repo.Decide(ctx, s.db, id, status, adminID, adminNotes, s.clock.Now())
	if err != nil {
		return err
	}
	if !won {
		return domain.ErrReviewAlreadyDecided
	}
	return nil
}

func (s *Service) writeAdminAuditLog(ctx context.Context, adminID snowflake.ID, action string, reviewID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := adminID.String()
	targetID := reviewID.String()
	if err := s.auditSvc.AuditLog(ctx, "admin", &actorID, action, "review_request", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
