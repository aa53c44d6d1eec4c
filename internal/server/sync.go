package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	syncdomain "github.com/hakwonlab/wonpay/internal/sync/domain"
	"go.uber.org/zap"
)

type syncResponse struct {
	Success     bool              `json:"success"`
	Duration    string            `json:"duration,omitempty"`
	Settlements *syncdomain.Counts `json:"settlements,omitempty"`
	Payouts     *syncdomain.Counts `json:"payouts,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// handleSync triggers a reconciliation pass. Failures answer in the
// same response shape so operators scripting against the endpoint can
// always read success and message.
func (s *Server) handleSync(c *gin.Context) {
	opts := syncdomain.Options{}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		opts.Since = since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		opts.Limit = limit
	}

	report, err := s.syncSvc.SyncAll(c.Request.Context(), opts)
	if err != nil {
		s.log.Error("manual sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, syncResponse{
			Success: false,
			Message: "sync failed",
		})
		return
	}
	if report.Skipped {
		c.JSON(http.StatusConflict, syncResponse{
			Success: false,
			Message: "another sync run is in progress",
		})
		return
	}

	c.JSON(http.StatusOK, syncResponse{
		Success:     true,
		Duration:    report.Duration.Round(time.Millisecond).String(),
		Settlements: &report.Settlements,
		Payouts:     &report.Payouts,
	})
}

// handleSyncInfo documents the sync endpoint. It never errors.
func (s *Server) handleSyncInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/sync",
		"method":      "POST",
		"description": "Synchronize settlements and payouts from the payment processor",
		"parameters": gin.H{
			"since": "RFC3339 timestamp; start of the sync window (default: 7 days ago)",
			"limit": "page size, 1-100 (default: 100)",
		},
		"example": "/sync?since=2026-03-01T00:00:00Z&limit=50",
	})
}
