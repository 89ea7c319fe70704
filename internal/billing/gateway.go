package billing

import (
	"context"
	"time"
)

// Card is the displayable part of a payment method.
type Card struct {
	Brand string
	Last4 string
}

// SubscriptionState is the provider's authoritative view of a subscription.
type SubscriptionState struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// epochToUTC converts provider epoch seconds into UTC wall time. Zero stays
// the zero time so optional timestamps survive round trips.
func epochToUTC(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Gateway abstracts the payment provider. Implementations must bound every
// upstream call with a timeout and translate provider errors into the
// package sentinels.
type Gateway interface {
	CreateCustomer(ctx context.Context, email string, name string, paymentMethodID string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID string, paymentMethodID string) error
	GetCard(ctx context.Context, paymentMethodID string) (*Card, error)
	CreateSubscription(ctx context.Context, customerID string, priceID string) (*SubscriptionState, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
}
