package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

// SubscriptionService keeps the local subscription state in sync with the
// payment provider. The provider is the source of truth; local rows are a
// cache plus a durable history.
type SubscriptionService struct {
	gateway  Gateway
	planRepo PlanRepository
	subRepo  SubscriptionRepository
	profiles users.ProfileRepository
}

func NewSubscriptionService(gateway Gateway, planRepo PlanRepository, subRepo SubscriptionRepository, profiles users.ProfileRepository) *SubscriptionService {
	return &SubscriptionService{
		gateway:  gateway,
		planRepo: planRepo,
		subRepo:  subRepo,
		profiles: profiles,
	}
}

// ListPlans returns the plan catalog ordered by price.
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return s.planRepo.Find(ctx)
}

// GetPlanByPriceID resolves a provider price id to the local plan.
func (s *SubscriptionService) GetPlanByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	plan, err := s.planRepo.FirstByPriceID(ctx, priceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	return plan, err
}

// Create subscribes the user to the plan behind priceID. Persistence is
// staged on purpose: a customer or payment method failure leaves nothing
// behind, while a subscription failure keeps the customer and card fields
// so a retry does not recreate the customer.
func (s *SubscriptionService) Create(ctx context.Context, user *model.User, paymentMethodID string, priceID string) (*model.Subscription, error) {
	plan, err := s.GetPlanByPriceID(ctx, priceID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.FirstByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	customerID := profile.StripeCustomerID
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, user.Email, user.FullName(), paymentMethodID)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.gateway.AttachPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
			return nil, err
		}
	}

	columns := map[string]interface{}{
		"stripe_customer_id":       customerID,
		"stripe_payment_method_id": paymentMethodID,
	}
	if card, err := s.gateway.GetCard(ctx, paymentMethodID); err == nil {
		columns["card_brand"] = card.Brand
		columns["card_last4"] = card.Last4
	} else {
		slog.Warn("Could not load card details", "error", err, "userId", user.ID)
	}
	if _, err := s.profiles.Updates(ctx, user.ID, columns); err != nil {
		return nil, err
	}

	state, err := s.gateway.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		// Customer and payment method fields stay persisted.
		return nil, err
	}

	record := &model.Subscription{
		StripeSubscriptionID: state.ID,
		StripeCustomerID:     customerID,
		UserID:               user.ID,
		PlanID:               &plan.ID,
		Status:               state.Status,
		CancelAtPeriodEnd:    state.CancelAtPeriodEnd,
	}
	if !state.CurrentPeriodEnd.IsZero() {
		end := state.CurrentPeriodEnd
		record.CurrentPeriodEnd = &end
	}
	if err := s.subRepo.Upsert(ctx, record); err != nil {
		return nil, err
	}
	if err := s.updateCache(ctx, user.ID, state); err != nil {
		return nil, err
	}
	return record, nil
}

// Cancel schedules the user's subscription to end at the current period
// boundary. Cancelling twice and cancelling without a live subscription are
// distinct errors.
func (s *SubscriptionService) Cancel(ctx context.Context, userID uint) error {
	profile, err := s.profiles.FirstByUserID(ctx, userID)
	if err != nil {
		return err
	}
	active := profile.SubscriptionStatus == model.SubscriptionStatusActive ||
		profile.SubscriptionStatus == model.SubscriptionStatusTrialing
	if profile.StripeSubscriptionID == "" || !active {
		return ErrNoActiveSubscription
	}
	if profile.CancelAtPeriodEnd {
		return ErrCancelScheduled
	}

	state, err := s.gateway.CancelAtPeriodEnd(ctx, profile.StripeSubscriptionID)
	if errors.Is(err, ErrSubscriptionGone) {
		if clearErr := s.clearCache(ctx, userID); clearErr != nil {
			return clearErr
		}
		return ErrNoActiveSubscription
	}
	if err != nil {
		return err
	}

	if err := s.updateCache(ctx, userID, state); err != nil {
		return err
	}
	_, err = s.subRepo.Updates(ctx, state.ID, map[string]interface{}{
		"cancel_at_period_end": true,
		"status":               state.Status,
	})
	return err
}

// Reconcile refreshes the profile cache from the provider's authoritative
// state. It only writes when the two disagree, so repeated calls are cheap
// and idempotent. A subscription deleted upstream resolves to an explicit
// canceled state.
func (s *SubscriptionService) Reconcile(ctx context.Context, userID uint) (*model.UserProfile, error) {
	profile, err := s.profiles.FirstByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.StripeSubscriptionID == "" {
		return profile, nil
	}

	state, err := s.gateway.GetSubscription(ctx, profile.StripeSubscriptionID)
	if errors.Is(err, ErrSubscriptionGone) {
		if err := s.clearCache(ctx, userID); err != nil {
			return nil, err
		}
		return s.profiles.FirstByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	if !s.drifted(profile, state) {
		return profile, nil
	}
	if err := s.ApplyState(ctx, userID, state); err != nil {
		return nil, err
	}
	return s.profiles.FirstByUserID(ctx, userID)
}

func (s *SubscriptionService) drifted(profile *model.UserProfile, state *SubscriptionState) bool {
	if profile.SubscriptionStatus != state.Status {
		return true
	}
	if profile.CancelAtPeriodEnd != state.CancelAtPeriodEnd {
		return true
	}
	cached := profile.CurrentPeriodEnd
	if cached == nil {
		return !state.CurrentPeriodEnd.IsZero()
	}
	return !cached.Equal(state.CurrentPeriodEnd)
}

// ResolveUser maps provider identifiers back to the owning user, preferring
// the customer id and falling back to the subscription id.
func (s *SubscriptionService) ResolveUser(ctx context.Context, customerID string, subscriptionID string) (uint, error) {
	if customerID != "" {
		profile, err := s.profiles.FirstByStripeCustomerID(ctx, customerID)
		if err == nil {
			return profile.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	if subscriptionID != "" {
		profile, err := s.profiles.FirstByStripeSubscriptionID(ctx, subscriptionID)
		if err == nil {
			return profile.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	return 0, ErrSubscriptionNotFound
}

// ApplyState upserts the durable record and refreshes the profile cache
// from remote state.
func (s *SubscriptionService) ApplyState(ctx context.Context, userID uint, state *SubscriptionState) error {
	record := &model.Subscription{
		StripeSubscriptionID: state.ID,
		StripeCustomerID:     state.CustomerID,
		UserID:               userID,
		Status:               state.Status,
		CancelAtPeriodEnd:    state.CancelAtPeriodEnd,
	}
	if !state.CurrentPeriodEnd.IsZero() {
		end := state.CurrentPeriodEnd
		record.CurrentPeriodEnd = &end
	}
	if state.PriceID != "" {
		plan, err := s.planRepo.FirstByPriceID(ctx, state.PriceID)
		if err == nil {
			record.PlanID = &plan.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	if err := s.subRepo.Upsert(ctx, record); err != nil {
		return err
	}
	return s.updateCache(ctx, userID, state)
}

// SetCacheStatus overrides only the cached status, used for invoice events
// that carry no subscription snapshot.
func (s *SubscriptionService) SetCacheStatus(ctx context.Context, userID uint, status string) error {
	_, err := s.profiles.Updates(ctx, userID, map[string]interface{}{
		"subscription_status": status,
	})
	return err
}

func (s *SubscriptionService) updateCache(ctx context.Context, userID uint, state *SubscriptionState) error {
	columns := map[string]interface{}{
		"stripe_subscription_id": state.ID,
		"subscription_status":    state.Status,
		"cancel_at_period_end":   state.CancelAtPeriodEnd,
	}
	if !state.CurrentPeriodEnd.IsZero() {
		columns["current_period_end"] = state.CurrentPeriodEnd
	}
	_, err := s.profiles.Updates(ctx, userID, columns)
	return err
}

// clearCache resolves a subscription that no longer exists upstream to an
// explicit canceled state. The subscription id is emptied so later
// reconciles stop at the no-subscription guard instead of asking the
// provider again.
func (s *SubscriptionService) clearCache(ctx context.Context, userID uint) error {
	_, err := s.profiles.Updates(ctx, userID, map[string]interface{}{
		"stripe_subscription_id": "",
		"subscription_status":    model.SubscriptionStatusCanceled,
		"cancel_at_period_end":   false,
		"current_period_end":     nil,
	})
	return err
}

// ListUserSubscriptions returns the durable history for one user.
func (s *SubscriptionService) ListUserSubscriptions(ctx context.Context, userID uint) ([]*model.Subscription, error) {
	return s.subRepo.FindByUserID(ctx, userID)
}
