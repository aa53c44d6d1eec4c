package domain

import (
	"context"

	"github.com/hakwonlab/wonpay/internal/webhook/verify"
)

// Service ingests webhook deliveries end to end: verify, dedup, apply.
// A duplicate delivery returns nil without re-applying side effects.
type Service interface {
	IngestSettlement(ctx context.Context, payload []byte, hdr verify.Headers) error
	IngestPayout(ctx context.Context, payload []byte, hdr verify.Headers) error
}
