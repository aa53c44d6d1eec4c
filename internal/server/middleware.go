package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// webhookRateLimit throttles webhook deliveries per client IP. When the
// limiter backend is down the middleware degrades open: dropping valid
// deliveries is worse than letting a burst through.
func (s *Server) webhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.limiter.Allow(
			c.Request.Context(),
			"wonpay:webhook:"+c.ClientIP(),
			s.cfg.WebhookRateLimit,
			s.cfg.WebhookRateBurst,
		)
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			retryAfter := int64(result.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
