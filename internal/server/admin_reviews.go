package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reviewdomain "github.com/smallbiznis/fanbase/internal/review/domain"
)

type createReviewRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Priority    string `json:"priority"`
	SubjectID   string `json:"subject_id" binding:"required"`
	RequesterID string `json:"requester_id" binding:"required"`
	Notes       string `json:"notes"`
}

func (s *Server) CreateReviewRequest(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subjectID, ok := parseID(req.SubjectID)
	if !ok {
		AbortWithError(c, newValidationError("subject_id", "invalid_subject_id", "invalid subject id"))
		return
	}
	requesterID, ok := parseID(req.RequesterID)
	if !ok {
		AbortWithError(c, newValidationError("requester_id", "invalid_requester_id", "invalid requester id"))
		return
	}

	review, err := s.reviewSvc.CreateReviewRequest(c.Request.Context(), reviewdomain.CreateReviewRequest{
		Kind:        reviewdomain.ReviewKind(strings.TrimSpace(req.Kind)),
		Priority:    reviewdomain.Priority(strings.TrimSpace(req.Priority)),
		SubjectID:   subjectID,
		RequesterID: requesterID,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (s *Server) ListPendingReviews(c *gin.Context) {
	kind := reviewdomain.ReviewKind(strings.TrimSpace(c.Query("kind")))

	reviews, err := s.reviewSvc.ListPending(c.Request.Context(), kind, parseLimitQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"review_requests": reviews})
}

func (s *Server) GetReviewByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid review id"))
		return
	}

	review, err := s.reviewSvc.GetReview(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

type decideReviewRequest struct {
	AdminID string `json:"admin_id" binding:"required"`
	Notes   string `json:"notes" binding:"required"`
}

func (s *Server) ApproveReview(c *gin.Context) {
	s.decideReview(c, s.reviewSvc.Approve)
}

func (s *Server) RejectReview(c *gin.Context) {
	s.decideReview(c, s.reviewSvc.Reject)
}

func (s *Server) MarkReviewUnderReview(c *gin.Context) {
	s.decideReview(c, s.reviewSvc.MarkUnderReview)
}

func (s *Server) decideReview(c *gin.Context, decide func(ctx context.Context, reviewID, adminID snowflake.ID, notes string) error) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid review id"))
		return
	}

	var req decideReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	adminID, ok := parseID(req.AdminID)
	if !ok {
		AbortWithError(c, newValidationError("admin_id", "invalid_admin_id", "invalid admin id"))
		return
	}

	if err := decide(c.Request.Context(), id, adminID, req.Notes); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
