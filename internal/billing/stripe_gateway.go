package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/nobilishq/nobilis-server/params"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// stripeGateway implements Gateway on the Stripe API client. Every call is
// bounded by params.StripeCallTimeout so a slow upstream cannot pin request
// handlers.
type stripeGateway struct {
	sc *client.API
}

func NewStripeGateway(apiKey string) Gateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeGateway{sc: sc}
}

func callParams(ctx context.Context) (stripe.Params, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, params.StripeCallTimeout)
	return stripe.Params{Context: ctx}, cancel
}

func translateErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return ErrSubscriptionGone
	}
	return err
}

// stageErr wraps a provisioning stage sentinel around an upstream failure.
// Provider faults additionally carry ErrUpstream so handlers answer with a
// gateway status; declines and invalid requests stay attributable to the
// caller.
func stageErr(stage error, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeAPI || stripeErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %w: %v", stage, ErrUpstream, err)
		}
		return fmt.Errorf("%w: %v", stage, err)
	}
	// Anything that is not a Stripe error is a transport failure, such as
	// a timeout or connection reset.
	return fmt.Errorf("%w: %w: %v", stage, ErrUpstream, err)
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, email string, name string, paymentMethodID string) (string, error) {
	p, cancel := callParams(ctx)
	defer cancel()
	customer, err := g.sc.Customers.New(&stripe.CustomerParams{
		Params:        p,
		Email:         stripe.String(email),
		Name:          stripe.String(name),
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		return "", stageErr(ErrCustomerCreate, err)
	}
	return customer.ID, nil
}

func (g *stripeGateway) AttachPaymentMethod(ctx context.Context, customerID string, paymentMethodID string) error {
	p, cancel := callParams(ctx)
	defer cancel()
	_, err := g.sc.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Params:   p,
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return stageErr(ErrPaymentMethod, err)
	}
	_, err = g.sc.Customers.Update(customerID, &stripe.CustomerParams{
		Params: p,
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		return stageErr(ErrPaymentMethod, err)
	}
	return nil
}

func (g *stripeGateway) GetCard(ctx context.Context, paymentMethodID string) (*Card, error) {
	p, cancel := callParams(ctx)
	defer cancel()
	pm, err := g.sc.PaymentMethods.Get(paymentMethodID, &stripe.PaymentMethodParams{Params: p})
	if err != nil {
		return nil, translateErr(err)
	}
	if pm.Card == nil {
		return &Card{}, nil
	}
	return &Card{
		Brand: string(pm.Card.Brand),
		Last4: pm.Card.Last4,
	}, nil
}

func (g *stripeGateway) CreateSubscription(ctx context.Context, customerID string, priceID string) (*SubscriptionState, error) {
	p, cancel := callParams(ctx)
	defer cancel()
	sub, err := g.sc.Subscriptions.New(&stripe.SubscriptionParams{
		Params:   p,
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	})
	if err != nil {
		return nil, stageErr(ErrSubscriptionCreate, err)
	}
	return subscriptionState(sub), nil
}

func (g *stripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	p, cancel := callParams(ctx)
	defer cancel()
	sub, err := g.sc.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{Params: p})
	if err != nil {
		return nil, translateErr(err)
	}
	return subscriptionState(sub), nil
}

func (g *stripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	p, cancel := callParams(ctx)
	defer cancel()
	sub, err := g.sc.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params:            p,
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return subscriptionState(sub), nil
}

func subscriptionState(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  epochToUTC(sub.CurrentPeriodEnd),
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		state.PriceID = sub.Items.Data[0].Price.ID
	}
	return state
}
