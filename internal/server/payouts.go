package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/fanbase/internal/ledger/domain"
	reviewdomain "github.com/smallbiznis/fanbase/internal/review/domain"
)

type requestPayoutRequest struct {
	CreatorID string  `json:"creator_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Currency  string  `json:"currency"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creatorID, ok := parseID(req.CreatorID)
	if !ok {
		AbortWithError(c, newValidationError("creator_id", "invalid_creator_id", "invalid creator id"))
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	payout, err := s.ledgerSvc.RequestPayout(c.Request.Context(), creatorID, req.Amount, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Every payout needs an admin decision before money moves; open the
	// review alongside the request.
	review, err := s.reviewSvc.CreateReviewRequest(c.Request.Context(), reviewdomain.CreateReviewRequest{
		Kind:        reviewdomain.ReviewKindPayout,
		Priority:    reviewdomain.PriorityMedium,
		SubjectID:   payout.ID,
		RequesterID: creatorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payout_request": payout,
		"review_request": review,
	})
}

func (s *Server) GetPayoutByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid payout id"))
		return
	}

	payout, err := s.ledgerSvc.GetPayout(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

func (s *Server) ListPayouts(c *gin.Context) {
	status := ledgerdomain.PayoutStatus(strings.TrimSpace(c.Query("status")))

	payouts, err := s.ledgerSvc.ListPayouts(c.Request.Context(), status, parseLimitQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout_requests": payouts})
}
