package billing

import "errors"

var (
	ErrPlanNotFound          = errors.New("billing: plan not found")
	ErrNoDefaultPlan         = errors.New("billing: no default plan configured")
	ErrSubscriptionNotFound  = errors.New("billing: subscription not found")
	ErrDuplicateSubscription = errors.New("billing: tenant already has an open subscription")
	ErrUnknownProvider       = errors.New("billing: unknown billing provider")
	ErrInvalidSignature      = errors.New("billing: webhook signature verification failed")
	ErrInvalidPayload        = errors.New("billing: webhook payload could not be parsed")
	ErrEventNotFound         = errors.New("billing: webhook event not found")
	ErrStorageFailed         = errors.New("billing: storage operation failed")
)
