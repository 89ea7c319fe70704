package billing

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrCancelScheduled      = errors.New("subscription already scheduled for cancellation")
	ErrCustomerCreate       = errors.New("could not create billing customer")
	ErrPaymentMethod        = errors.New("could not attach payment method")
	ErrSubscriptionCreate   = errors.New("could not create subscription")
	ErrSubscriptionGone     = errors.New("subscription no longer exists upstream")
	ErrUpstream             = errors.New("billing provider unavailable")
)
