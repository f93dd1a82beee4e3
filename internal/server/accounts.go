package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetAccountByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid account id"))
		return
	}

	account, err := s.accountSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}
