package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hakwonlab/wonpay/internal/plan"
)

type Status string

const (
	StatusFree      Status = "free"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"

	// StatusCancelling is derived, never stored: an active subscription
	// whose auto-renew was turned off keeps serving until the period ends.
	StatusCancelling Status = "cancelling"
)

// Subscription is the billing state of one academy, keyed by academy id.
type Subscription struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id,string"`
	AcademyID          string       `gorm:"uniqueIndex;not null" json:"academyId"`
	PlanTier           plan.Tier    `gorm:"not null;default:free" json:"planTier"`
	Status             Status       `gorm:"not null;default:free" json:"status"`
	BillingCycle       plan.Cycle   `gorm:"not null;default:monthly" json:"billingCycle"`
	BillingKey         *string      `json:"-"`
	CurrentPeriodStart time.Time    `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time    `json:"currentPeriodEnd"`
	NextPaymentAt      *time.Time   `json:"nextPaymentAt,omitempty"`
	AutoRenew          bool         `gorm:"not null;default:true" json:"autoRenew"`
	FailedAttempts     int          `gorm:"not null;default:0" json:"failedAttempts"`
	NextRetryAt        *time.Time   `json:"nextRetryAt,omitempty"`
	SuspendedReason    *string      `json:"suspendedReason,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

func (Subscription) TableName() string { return "subscriptions" }

// EffectiveStatus is the presentation status: active with auto-renew off
// reads as cancelling until the lapse job downgrades the row.
func (s *Subscription) EffectiveStatus() Status {
	if s.Status == StatusActive && !s.AutoRenew {
		return StatusCancelling
	}
	return s.Status
}

// DaysRemaining counts whole days until the period ends, rounding up.
func (s *Subscription) DaysRemaining(now time.Time) int {
	remaining := s.CurrentPeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceFailed   InvoiceStatus = "failed"
	InvoiceRefunded InvoiceStatus = "refunded"
)

// Invoice records one charge attempt or proration charge. Paid invoices
// are immutable; repository updates guard on status.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id,string"`
	AcademyID      string        `gorm:"index;not null" json:"academyId"`
	SubscriptionID snowflake.ID  `gorm:"index;not null" json:"subscriptionId,string"`
	PaymentID      *string       `gorm:"index" json:"paymentId,omitempty"`
	Amount         int64         `json:"amount"`
	Currency       string        `gorm:"default:KRW" json:"currency"`
	Status         InvoiceStatus `gorm:"not null;default:pending" json:"status"`
	PlanTier       plan.Tier     `gorm:"not null" json:"planTier"`
	BillingCycle   plan.Cycle    `gorm:"not null" json:"billingCycle"`
	DueDate        time.Time     `json:"dueDate"`
	PeriodStart    time.Time     `json:"periodStart"`
	PeriodEnd      time.Time     `json:"periodEnd"`
	FailureReason  *string       `json:"failureReason,omitempty"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
	FailedAt       *time.Time    `json:"failedAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

func (Invoice) TableName() string { return "invoices" }
