package domain

import "context"

// ChargeRequest is one billing-key charge at the payment gateway.
type ChargeRequest struct {
	PaymentID    string
	BillingKey   string
	OrderName    string
	CustomerName string
	Amount       int64
	Currency     string
}

type ChargeResult struct {
	PaymentID string
}

// Charger executes billing-key charges. Implemented by the payment
// gateway client; stubbed in tests.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
