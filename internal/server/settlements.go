package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func listLimit(c *gin.Context) int {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	return limit
}

func (s *Server) handleListSettlements(c *gin.Context) {
	settlements, err := s.settlements.ListSettlements(c.Request.Context(), s.db, listLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settlements": settlements})
}

func (s *Server) handleListPayouts(c *gin.Context) {
	payouts, err := s.settlements.ListPayouts(c.Request.Context(), s.db, listLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}
