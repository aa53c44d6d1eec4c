package service

import (
	"context"

	"github.com/hakwonlab/wonpay/internal/portone"
	"github.com/hakwonlab/wonpay/internal/subscription/domain"
)

type portoneCharger struct {
	client *portone.Client
}

// NewCharger adapts the gateway client to the billing charger seam.
func NewCharger(client *portone.Client) domain.Charger {
	return &portoneCharger{client: client}
}

func (c *portoneCharger) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	resp, err := c.client.ChargeBillingKey(ctx, req.PaymentID, portone.ChargeRequest{
		BillingKey:   req.BillingKey,
		OrderName:    req.OrderName,
		CustomerName: req.CustomerName,
		Amount:       req.Amount,
		Currency:     req.Currency,
	})
	if err != nil {
		return nil, err
	}
	paymentID := resp.Payment.ID
	if paymentID == "" {
		paymentID = req.PaymentID
	}
	return &domain.ChargeResult{PaymentID: paymentID}, nil
}
