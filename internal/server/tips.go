package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type createTipRequest struct {
	SubscriberID string  `json:"subscriber_id" binding:"required"`
	CreatorID    string  `json:"creator_id" binding:"required"`
	Amount       float64 `json:"amount" binding:"required"`
	Currency     string  `json:"currency"`
}

func (s *Server) CreateTip(c *gin.Context) {
	var req createTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscriberID, ok := parseID(req.SubscriberID)
	if !ok {
		AbortWithError(c, newValidationError("subscriber_id", "invalid_subscriber_id", "invalid subscriber id"))
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

	resp, err := s.ledgerSvc.CreateTip(c.Request.Context(), subscriberID, creatorID, req.Amount, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
