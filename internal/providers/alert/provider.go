package alert

import "context"

// Provider delivers operational alerts. Message formatting and the
// actual dispatch channel (Slack, Kakao, email) live outside the engine;
// implementations receive structured facts only.
type Provider interface {
	PayoutFailed(ctx context.Context, payoutID, partnerID string, amount int64, currency, reason string) error
	WebhookVerificationFailed(ctx context.Context, resource string, err error) error
	ChargeFailed(ctx context.Context, academyID string, amount int64, attempts int, reason string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PayoutFailed(ctx context.Context, payoutID, partnerID string, amount int64, currency, reason string) error {
	return nil
}

func (p *NoOpProvider) WebhookVerificationFailed(ctx context.Context, resource string, err error) error {
	return nil
}

func (p *NoOpProvider) ChargeFailed(ctx context.Context, academyID string, amount int64, attempts int, reason string) error {
	return nil
}
