package domain

import "errors"

var (
	ErrNotFound          = errors.New("subscription not found")
	ErrMissingBillingKey = errors.New("subscription has no billing key")
	ErrReasonRequired    = errors.New("suspension reason is required")
	ErrNotSuspended      = errors.New("subscription is not suspended")
	ErrInvalidTier       = errors.New("invalid plan tier")
	ErrSamePlan          = errors.New("subscription already on requested plan")
)
