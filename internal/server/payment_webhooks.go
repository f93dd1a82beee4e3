package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/fanbase/internal/payment/domain"
)

// HandlePaymentWebhook acknowledges with 200 once the event is durably
// recorded, so the gateway stops redelivering. Verification failures return
// 400 without a body the gateway could mistake for success.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	if s.webhookLimiter.Enabled() {
		limit, err := s.webhookLimiter.AllowProvider(c.Request.Context(), provider)
		// A limiter outage must not drop deliveries; fail open.
		if err == nil && !limit.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false})
			return
		}
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	err = s.ingestor.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, paymentdomain.ErrInvalidSignature),
			errors.Is(err, paymentdomain.ErrInvalidPayload),
			errors.Is(err, paymentdomain.ErrInvalidEvent),
			errors.Is(err, paymentdomain.ErrInvalidProvider):
			c.JSON(http.StatusBadRequest, gin.H{"success": false})
		case errors.Is(err, paymentdomain.ErrProviderNotFound):
			AbortWithError(c, err)
		default:
			// Processing failed after the event was recorded; a non-2xx
			// status makes the gateway redeliver and retry.
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
