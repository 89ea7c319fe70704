package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nobilishq/nobilis-server/internal/store"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/nobilishq/nobilis-server/params"
	"github.com/stripe/stripe-go/v76"
)

// Notifier delivers in-app notifications for billing events. Failures are
// logged, never propagated to the webhook response.
type Notifier interface {
	Notify(ctx context.Context, recipientID uint, actorID *uint, verb string, description string, targetType string, targetID *uint) error
}

type eventHandler func(ctx context.Context, event *stripe.Event) error

// WebhookProcessor verifies and dispatches provider webhook deliveries.
// Events are keyed by id in a short-lived store so redelivered events are
// processed exactly once.
type WebhookProcessor struct {
	secret   string
	seen     store.Store[time.Time]
	subs     *SubscriptionService
	notifier Notifier
	handlers map[stripe.EventType]eventHandler
}

func NewWebhookProcessor(secret string, seen store.Store[time.Time], subs *SubscriptionService, notifier Notifier) *WebhookProcessor {
	p := &WebhookProcessor{
		secret:   secret,
		seen:     seen,
		subs:     subs,
		notifier: notifier,
	}
	p.handlers = map[stripe.EventType]eventHandler{
		stripe.EventTypeCustomerSubscriptionCreated: p.handleSubscriptionChange,
		stripe.EventTypeCustomerSubscriptionUpdated: p.handleSubscriptionChange,
		stripe.EventTypeCustomerSubscriptionDeleted: p.handleSubscriptionDeleted,
		stripe.EventTypeInvoicePaymentSucceeded:     p.handlePaymentSucceeded,
		stripe.EventTypeInvoicePaymentFailed:        p.handlePaymentFailed,
	}
	return p
}

// VerifySignature checks the Stripe-Signature header (t=..,v1=..) against
// the webhook secret, rejecting payloads older than the tolerance window.
func (p *WebhookProcessor) VerifySignature(payload []byte, header string) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimPrefix(part, "t=")
		}
		if strings.HasPrefix(part, "v1=") {
			sig = strings.TrimPrefix(part, "v1=")
		}
	}
	if ts == "" || sig == "" {
		slog.Warn("Webhook signature header missing timestamp or signature")
		return false
	}
	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		slog.Warn("Could not parse webhook timestamp", "error", err)
		return false
	}
	age := time.Since(time.Unix(tsInt, 0))
	if age > params.WebhookTolerance {
		slog.Warn("Webhook timestamp outside tolerance", "age", age)
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// HandleEvent routes one verified event to its handler. Unknown event types
// and redelivered event ids are skipped without error.
func (p *WebhookProcessor) HandleEvent(ctx context.Context, event *stripe.Event) error {
	handler, ok := p.handlers[event.Type]
	if !ok {
		slog.Debug("Ignoring webhook event", "type", event.Type, "eventId", event.ID)
		return nil
	}
	if _, err := p.seen.Get(ctx, event.ID); err == nil {
		slog.Info("Skipping redelivered webhook event", "eventId", event.ID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := handler(ctx, event); err != nil {
		return err
	}
	return p.seen.Set(ctx, event.ID, time.Now().UTC(), params.WebhookEventDedupTTL)
}

func (p *WebhookProcessor) eventSubscription(event *stripe.Event) (*SubscriptionState, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, err
	}
	return subscriptionState(&sub), nil
}

func (p *WebhookProcessor) handleSubscriptionChange(ctx context.Context, event *stripe.Event) error {
	state, err := p.eventSubscription(event)
	if err != nil {
		return err
	}
	userID, err := p.subs.ResolveUser(ctx, state.CustomerID, state.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		slog.Warn("Webhook event for unknown customer", "eventId", event.ID, "customerId", state.CustomerID)
		return nil
	}
	if err != nil {
		return err
	}
	return p.subs.ApplyState(ctx, userID, state)
}

func (p *WebhookProcessor) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	state, err := p.eventSubscription(event)
	if err != nil {
		return err
	}
	state.Status = model.SubscriptionStatusCanceled
	userID, err := p.subs.ResolveUser(ctx, state.CustomerID, state.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		slog.Warn("Webhook event for unknown customer", "eventId", event.ID, "customerId", state.CustomerID)
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.subs.ApplyState(ctx, userID, state); err != nil {
		return err
	}
	p.notify(ctx, userID, "subscription_canceled", "Your membership subscription has ended")
	return nil
}

func (p *WebhookProcessor) eventInvoiceUser(ctx context.Context, event *stripe.Event) (uint, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return 0, err
	}
	var customerID, subscriptionID string
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	if invoice.Subscription != nil {
		subscriptionID = invoice.Subscription.ID
	}
	return p.subs.ResolveUser(ctx, customerID, subscriptionID)
}

func (p *WebhookProcessor) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	userID, err := p.eventInvoiceUser(ctx, event)
	if errors.Is(err, ErrSubscriptionNotFound) {
		slog.Warn("Invoice event for unknown customer", "eventId", event.ID)
		return nil
	}
	if err != nil {
		return err
	}
	return p.subs.SetCacheStatus(ctx, userID, model.SubscriptionStatusActive)
}

func (p *WebhookProcessor) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	userID, err := p.eventInvoiceUser(ctx, event)
	if errors.Is(err, ErrSubscriptionNotFound) {
		slog.Warn("Invoice event for unknown customer", "eventId", event.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.subs.SetCacheStatus(ctx, userID, model.SubscriptionStatusPastDue); err != nil {
		return err
	}
	p.notify(ctx, userID, "payment_failed", "A membership payment did not go through")
	return nil
}

func (p *WebhookProcessor) notify(ctx context.Context, userID uint, verb string, description string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.Notify(ctx, userID, nil, verb, description, model.TargetTypeSubscription, nil)
	if err != nil {
		slog.Error("Could not deliver billing notification", "error", err, "userId", userID, "verb", verb)
	}
}
