package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SettlementStatus values as reported by the payment processor.
type SettlementStatus string

const (
	SettlementScheduled       SettlementStatus = "SCHEDULED"
	SettlementInProcess       SettlementStatus = "IN_PROCESS"
	SettlementSettled         SettlementStatus = "SETTLED"
	SettlementPayoutScheduled SettlementStatus = "PAYOUT_SCHEDULED"
	SettlementPaidOut         SettlementStatus = "PAID_OUT"
	SettlementCanceled        SettlementStatus = "CANCELED"
)

// Rank orders settlement statuses along the lifecycle. Writes carrying a
// lower rank than the stored row never win, which keeps out-of-order
// webhook deliveries and stale sync pages from regressing state.
// CANCELED is terminal and can arrive from any prior state.
func (s SettlementStatus) Rank() int {
	switch s {
	case SettlementScheduled:
		return 1
	case SettlementInProcess:
		return 2
	case SettlementSettled:
		return 3
	case SettlementPayoutScheduled:
		return 4
	case SettlementPaidOut:
		return 5
	case SettlementCanceled:
		return 6
	default:
		return 0
	}
}

func (s SettlementStatus) Valid() bool {
	return s.Rank() > 0
}

type PayoutStatus string

const (
	PayoutScheduled  PayoutStatus = "SCHEDULED"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutSucceeded  PayoutStatus = "SUCCEEDED"
	PayoutFailed     PayoutStatus = "FAILED"
	PayoutCanceled   PayoutStatus = "CANCELED"
)

// Rank orders payout statuses. SUCCEEDED, FAILED and CANCELED are all
// terminal and share the top rank; once terminal, a payout only moves
// again if the processor reports another terminal state.
func (s PayoutStatus) Rank() int {
	switch s {
	case PayoutScheduled:
		return 1
	case PayoutProcessing:
		return 2
	case PayoutSucceeded, PayoutFailed, PayoutCanceled:
		return 3
	default:
		return 0
	}
}

func (s PayoutStatus) Valid() bool {
	return s.Rank() > 0
}

// Settlement mirrors a partner settlement at the processor, keyed by the
// processor's settlement id.
type Settlement struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id,string"`
	SettlementID     string           `gorm:"uniqueIndex;not null" json:"settlementId"`
	PartnerID        string           `gorm:"index" json:"partnerId"`
	PaymentID        *string          `gorm:"index" json:"paymentId,omitempty"`
	Status           SettlementStatus `gorm:"not null" json:"status"`
	StatusRank       int              `gorm:"not null;default:0" json:"-"`
	OrderAmount      int64            `json:"orderAmount"`
	SettlementAmount int64            `json:"settlementAmount"`
	Currency         string           `gorm:"default:KRW" json:"currency"`
	SettlementDate   *time.Time       `json:"settlementDate,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (Settlement) TableName() string { return "settlements" }

// Payout mirrors a partner payout at the processor.
type Payout struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id,string"`
	PayoutID      string       `gorm:"uniqueIndex;not null" json:"payoutId"`
	PartnerID     string       `gorm:"index" json:"partnerId"`
	Status        PayoutStatus `gorm:"not null" json:"status"`
	StatusRank    int          `gorm:"not null;default:0" json:"-"`
	Amount        int64        `json:"amount"`
	Currency      string       `gorm:"default:KRW" json:"currency"`
	ScheduledAt   *time.Time   `json:"scheduledAt,omitempty"`
	PayoutAt      *time.Time   `json:"payoutAt,omitempty"`
	FailureReason *string      `json:"failureReason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (Payout) TableName() string { return "payouts" }
