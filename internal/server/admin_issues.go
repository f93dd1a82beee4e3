package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reviewdomain "github.com/smallbiznis/fanbase/internal/review/domain"
)

type reportIssueRequest struct {
	Kind          string `json:"kind"`
	AccountID     string `json:"account_id" binding:"required"`
	TransactionID string `json:"transaction_id"`
	Description   string `json:"description" binding:"required"`
	Priority      string `json:"priority"`
}

func (s *Server) ReportIssue(c *gin.Context) {
	var req reportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountID, ok := parseID(req.AccountID)
	if !ok {
		AbortWithError(c, newValidationError("account_id", "invalid_account_id", "invalid account id"))
		return
	}

	issue := reviewdomain.ReportIssueRequest{
		Kind:        req.Kind,
		AccountID:   accountID,
		Description: req.Description,
		Priority:    reviewdomain.Priority(strings.TrimSpace(req.Priority)),
	}
	if strings.TrimSpace(req.TransactionID) != "" {
		txID, ok := parseID(req.TransactionID)
		if !ok {
			AbortWithError(c, newValidationError("transaction_id", "invalid_transaction_id", "invalid transaction id"))
			return
		}
		issue.TransactionID = &txID
	}

	created, err := s.reviewSvc.ReportIssue(c.Request.Context(), issue)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) ListIssues(c *gin.Context) {
	status := reviewdomain.IssueStatus(strings.TrimSpace(c.Query("status")))

	issues, err := s.reviewSvc.ListIssues(c.Request.Context(), status, parseLimitQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_issues": issues})
}

type updateIssueStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) UpdateIssueStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid issue id"))
		return
	}

	var req updateIssueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := reviewdomain.IssueStatus(strings.TrimSpace(req.Status))
	if err := s.reviewSvc.UpdateIssueStatus(c.Request.Context(), id, status); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

func (s *Server) ResolveIssue(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid issue id"))
		return
	}

	if err := s.reviewSvc.ResolveIssue(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}
