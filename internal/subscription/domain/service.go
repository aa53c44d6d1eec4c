package domain

import (
	"context"

	"github.com/hakwonlab/wonpay/internal/plan"
)

// ChargeRunReport summarizes one recurring-billing pass.
type ChargeRunReport struct {
	Due     int `json:"due"`
	Charged int `json:"charged"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type ChangePlanResult struct {
	Subscription   *Subscription `json:"subscription"`
	Invoice        *Invoice      `json:"invoice,omitempty"`
	ProratedAmount int64         `json:"proratedAmount"`
}

type Service interface {
	Get(ctx context.Context, academyID string) (*Subscription, error)

	// Cancel clears auto-renew only; service continues until period end.
	Cancel(ctx context.Context, academyID string) error

	Suspend(ctx context.Context, academyID, reason string) error
	Reinstate(ctx context.Context, academyID string) error

	// ChangePlan switches tiers, charging the prorated difference on
	// upgrades when a billing key is present.
	ChangePlan(ctx context.Context, academyID string, to plan.Tier) (*ChangePlanResult, error)

	// ChargeDue runs recurring billing for every due subscription.
	ChargeDue(ctx context.Context) (ChargeRunReport, error)

	// LapseExpired downgrades non-renewing subscriptions whose period has
	// ended. Returns the number downgraded.
	LapseExpired(ctx context.Context) (int, error)

	ListInvoices(ctx context.Context, academyID string) ([]Invoice, error)
}
