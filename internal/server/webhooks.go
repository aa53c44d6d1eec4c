package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hakwonlab/wonpay/internal/webhook/verify"
)

// Webhook handlers pass the exact raw request bytes to verification.
// Parsing before verifying would break the HMAC.

func (s *Server) handleSettlementWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.IngestSettlement(c.Request.Context(), payload, verify.Headers{
		ID:        c.GetHeader("webhook-id"),
		Signature: c.GetHeader("webhook-signature"),
		Timestamp: c.GetHeader("webhook-timestamp"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePayoutWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.IngestPayout(c.Request.Context(), payload, verify.Headers{
		ID:        c.GetHeader("webhook-id"),
		Signature: c.GetHeader("webhook-signature"),
		Timestamp: c.GetHeader("webhook-timestamp"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
