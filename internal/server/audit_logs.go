package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fanbase/internal/audit/domain"
	"github.com/smallbiznis/fanbase/pkg/db/pagination"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageSize:  parseLimitQuery(c),
			PageToken: strings.TrimSpace(c.Query("page_token")),
		},
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
		ActorType:  strings.TrimSpace(c.Query("actor_type")),
	}

	if raw := strings.TrimSpace(c.Query("start_at")); raw != "" {
		startAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid timestamp"))
			return
		}
		req.StartAt = &startAt
	}
	if raw := strings.TrimSpace(c.Query("end_at")); raw != "" {
		endAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid timestamp"))
			return
		}
		req.EndAt = &endAt
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
