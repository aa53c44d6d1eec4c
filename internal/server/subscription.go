package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hakwonlab/wonpay/internal/plan"
)

type subscriptionResponse struct {
	AcademyID    string     `json:"academyId"`
	PlanTier     plan.Tier  `json:"planTier"`
	Status       string     `json:"status"`
	BillingCycle plan.Cycle `json:"billingCycle"`
	AutoRenew    bool       `json:"autoRenew"`
	PeriodStart  string     `json:"currentPeriodStart"`
	PeriodEnd    string     `json:"currentPeriodEnd"`
	NextPayment  *string    `json:"nextPaymentAt,omitempty"`
}

func (s *Server) handleGetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), c.Param("academyId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := subscriptionResponse{
		AcademyID:    sub.AcademyID,
		PlanTier:     sub.PlanTier,
		Status:       string(sub.EffectiveStatus()),
		BillingCycle: sub.BillingCycle,
		AutoRenew:    sub.AutoRenew,
		PeriodStart:  sub.CurrentPeriodStart.Format(time.RFC3339),
		PeriodEnd:    sub.CurrentPeriodEnd.Format(time.RFC3339),
	}
	if sub.NextPaymentAt != nil {
		next := sub.NextPaymentAt.Format(time.RFC3339)
		resp.NextPayment = &next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListInvoices(c *gin.Context) {
	invoices, err := s.subscriptionSvc.ListInvoices(c.Request.Context(), c.Param("academyId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) handleCancelSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("academyId")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleSuspendSubscription(c *gin.Context) {
	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.subscriptionSvc.Suspend(c.Request.Context(), c.Param("academyId"), req.Reason); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "suspended"})
}

func (s *Server) handleReinstateSubscription(c *gin.Context) {
	if err := s.subscriptionSvc.Reinstate(c.Request.Context(), c.Param("academyId")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

type changePlanRequest struct {
	PlanTier plan.Tier `json:"planTier" binding:"required"`
}

func (s *Server) handleChangePlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), c.Param("academyId"), req.PlanTier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
