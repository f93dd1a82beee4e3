package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createSubscriptionRequest struct {
	SubscriberID string `json:"subscriber_id" binding:"required"`
	PlanID       string `json:"plan_id" binding:"required"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscriberID, ok := parseID(req.SubscriberID)
	if !ok {
		AbortWithError(c, newValidationError("subscriber_id", "invalid_subscriber_id", "invalid subscriber id"))
		return
	}
	planID, ok := parseID(req.PlanID)
	if !ok {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan id"))
		return
	}

	resp, err := s.subscriptionSvc.Subscribe(c.Request.Context(), subscriberID, planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid subscription id"))
		return
	}

	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid subscription id"))
		return
	}

	if err := s.subscriptionSvc.Cancel(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
