package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fanbase/internal/audit/masking"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
	reviewdomain "github.com/smallbiznis/fanbase/internal/review/domain"
	"go.uber.org/zap"
)

type verifyReceiptRequest struct {
	ReceiptData string `json:"receipt_data" binding:"required"`
	AccountID   string `json:"account_id"`
}

func (s *Server) VerifyReceipt(c *gin.Context) {
	var req verifyReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.receiptVerifier.Verify(c.Request.Context(), req.ReceiptData)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Verified() && strings.TrimSpace(req.AccountID) != "" {
		if accountID, ok := parseID(req.AccountID); ok {
			if result.Tier == "" {
				// A verified receipt with an unmapped product id needs a
				// human: flag it instead of guessing a tier.
				if _, err := s.reviewSvc.ReportIssue(c.Request.Context(), reviewdomain.ReportIssueRequest{
					Kind:        "unmapped_product",
					AccountID:   accountID,
					Description: "receipt verified but product id " + result.ProductID + " does not map to a tier",
				}); err != nil {
					zap.L().Warn("failed to flag unmapped product", zap.Error(err))
				}
			} else {
				event := &paymentdomain.ReconcileEvent{
					Kind:            paymentdomain.KindChargeSucceeded,
					Provider:        "appstore",
					ProviderEventID: "receipt-" + result.OriginalTransactionID,
					ExternalID:      result.OriginalTransactionID,
					SubjectType:     paymentdomain.SubjectPlatformMembership,
					SubjectID:       accountID,
					Tier:            result.Tier,
				}
				if err := s.reconcileSvc.Apply(c.Request.Context(), event); err != nil &&
					!errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
					AbortWithError(c, err)
					return
				}
			}
		}
	}

	targetID := result.OriginalTransactionID
	_ = s.auditSvc.AuditLog(c.Request.Context(), "system", nil, "receipt.verified", "receipt", &targetID, map[string]any{
		"status":       result.Status,
		"environment":  result.Environment,
		"product_id":   result.ProductID,
		"tier":         result.Tier,
		"receipt_data": masking.MaskSecret(req.ReceiptData),
	})

	c.JSON(http.StatusOK, result)
}
