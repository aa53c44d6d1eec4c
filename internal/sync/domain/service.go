package domain

import (
	"context"
	"time"
)

// Options selects the reconciliation window. Zero values fall back to
// the configured defaults (seven days back, 100 items per page).
type Options struct {
	Since time.Time
	Limit int
}

// Counts tallies one resource kind within a run. Malformed items and
// failed writes land in Errors; they never abort the run.
type Counts struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Settlements Counts        `json:"settlements"`
	Payouts     Counts        `json:"payouts"`
	Duration    time.Duration `json:"-"`
	Skipped     bool          `json:"-"`
}

// Service pulls the processor's current settlement and payout state and
// reconciles it into local storage. Sync writes go through the same
// monotonic upsert as webhooks, so running both concurrently is safe.
type Service interface {
	SyncAll(ctx context.Context, opts Options) (Report, error)
	SyncSettlements(ctx context.Context, opts Options) (Counts, error)
	SyncPayouts(ctx context.Context, opts Options) (Counts, error)
}
