package domain

import "errors"

var (
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrUnknownEventType = errors.New("unknown webhook event type")
)
