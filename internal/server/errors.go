package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hakwonlab/wonpay/internal/plan"
	"github.com/hakwonlab/wonpay/internal/portone"
	subscriptiondomain "github.com/hakwonlab/wonpay/internal/subscription/domain"
	usageservice "github.com/hakwonlab/wonpay/internal/usage/service"
	webhookdomain "github.com/hakwonlab/wonpay/internal/webhook/domain"
	"github.com/hakwonlab/wonpay/internal/webhook/verify"
	"gorm.io/gorm"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, verify.ErrVerification):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "webhook verification failed",
		}

	case errors.Is(err, webhookdomain.ErrInvalidPayload),
		errors.Is(err, webhookdomain.ErrUnknownEventType),
		errors.Is(err, usageservice.ErrMissingAcademyID),
		errors.Is(err, subscriptiondomain.ErrReasonRequired),
		errors.Is(err, subscriptiondomain.ErrInvalidTier),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, subscriptiondomain.ErrMissingBillingKey),
		errors.Is(err, subscriptiondomain.ErrNotSuspended),
		errors.Is(err, plan.ErrUnknownFeature),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}

	case errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	// The processor's response body stays in the logs; clients only see
	// that the upstream call failed.
	case portone.IsAPIError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "payment processor request failed",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
