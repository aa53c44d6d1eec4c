package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	settlementdomain "github.com/hakwonlab/wonpay/internal/settlement/domain"
)

// Event is the closed set of webhook payloads the engine understands.
// Handlers switch over the concrete types; the unexported method keeps
// the set closed so a new variant forces every switch to be revisited.
type Event interface {
	EventType() string
	isEvent()
}

// Amount carries the order and settlement sides of a settlement amount.
type Amount struct {
	Order      int64 `json:"order"`
	Settlement int64 `json:"settlement"`
}

type SettlementData struct {
	SettlementID   string  `json:"settlementId"`
	PartnerID      string  `json:"partnerId"`
	PaymentID      *string `json:"paymentId,omitempty"`
	Status         string  `json:"status"`
	Amount         *Amount `json:"amount,omitempty"`
	SettlementDate *string `json:"settlementDate,omitempty"`
}

type SettlementEvent struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Data      SettlementData `json:"data"`
}

func (e *SettlementEvent) EventType() string { return e.Type }
func (e *SettlementEvent) isEvent()          {}

// Status resolves the settlement status from the event type suffix,
// falling back to the inline data.status field.
func (e *SettlementEvent) Status() settlementdomain.SettlementStatus {
	switch e.Type {
	case "Settlement.Scheduled":
		return settlementdomain.SettlementScheduled
	case "Settlement.InProcess":
		return settlementdomain.SettlementInProcess
	case "Settlement.Settled":
		return settlementdomain.SettlementSettled
	case "Settlement.PayoutScheduled":
		return settlementdomain.SettlementPayoutScheduled
	case "Settlement.PaidOut":
		return settlementdomain.SettlementPaidOut
	case "Settlement.Canceled":
		return settlementdomain.SettlementCanceled
	}
	return settlementdomain.SettlementStatus(e.Data.Status)
}

type PayoutData struct {
	PayoutID      string  `json:"payoutId"`
	PartnerID     string  `json:"partnerId"`
	Status        string  `json:"status"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	ScheduledAt   *string `json:"scheduledAt,omitempty"`
	PayoutAt      *string `json:"payoutAt,omitempty"`
	FailureReason *string `json:"failureReason,omitempty"`
}

type PayoutEvent struct {
	Type      string     `json:"type"`
	Timestamp string     `json:"timestamp"`
	Data      PayoutData `json:"data"`
}

func (e *PayoutEvent) EventType() string { return e.Type }
func (e *PayoutEvent) isEvent()          {}

func (e *PayoutEvent) Status() settlementdomain.PayoutStatus {
	switch e.Type {
	case "Payout.Scheduled":
		return settlementdomain.PayoutScheduled
	case "Payout.Processing":
		return settlementdomain.PayoutProcessing
	case "Payout.Succeeded":
		return settlementdomain.PayoutSucceeded
	case "Payout.Failed":
		return settlementdomain.PayoutFailed
	case "Payout.Canceled":
		return settlementdomain.PayoutCanceled
	}
	return settlementdomain.PayoutStatus(e.Data.Status)
}

// ParseSettlementEvent decodes and validates a settlement webhook body.
func ParseSettlementEvent(payload []byte) (*SettlementEvent, error) {
	var event SettlementEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !strings.HasPrefix(event.Type, "Settlement.") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	if event.Data.SettlementID == "" {
		return nil, fmt.Errorf("%w: missing settlementId", ErrInvalidPayload)
	}
	if !event.Status().Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	return &event, nil
}

// ParsePayoutEvent decodes and validates a payout webhook body.
func ParsePayoutEvent(payload []byte) (*PayoutEvent, error) {
	var event PayoutEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !strings.HasPrefix(event.Type, "Payout.") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	if event.Data.PayoutID == "" {
		return nil, fmt.Errorf("%w: missing payoutId", ErrInvalidPayload)
	}
	if !event.Status().Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
	return &event, nil
}
