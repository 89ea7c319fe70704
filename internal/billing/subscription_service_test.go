package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type fakeGateway struct {
	customers      int
	attached       []string
	card           *Card
	cardErr        error
	createdSubs    []string
	customerErr    error
	attachErr      error
	subscribeErr   error
	remote         *SubscriptionState
	remoteErr      error
	canceled       []string
	cancelErr      error
	nextCustomerID string
	nextSubState   *SubscriptionState
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, email, name, paymentMethodID string) (string, error) {
	if g.customerErr != nil {
		return "", g.customerErr
	}
	g.customers++
	return g.nextCustomerID, nil
}

func (g *fakeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if g.attachErr != nil {
		return g.attachErr
	}
	g.attached = append(g.attached, paymentMethodID)
	return nil
}

func (g *fakeGateway) GetCard(ctx context.Context, paymentMethodID string) (*Card, error) {
	if g.cardErr != nil {
		return nil, g.cardErr
	}
	return g.card, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customerID, priceID string) (*SubscriptionState, error) {
	if g.subscribeErr != nil {
		return nil, g.subscribeErr
	}
	g.createdSubs = append(g.createdSubs, priceID)
	return g.nextSubState, nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if g.remoteErr != nil {
		return nil, g.remoteErr
	}
	return g.remote, nil
}

func (g *fakeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	g.canceled = append(g.canceled, subscriptionID)
	state := *g.remote
	state.CancelAtPeriodEnd = true
	return &state, nil
}

type fakePlanRepo struct {
	plans map[string]*model.Plan
}

func (r *fakePlanRepo) FirstByID(ctx context.Context, planID uint) (*model.Plan, error) {
	for _, plan := range r.plans {
		if plan.ID == planID {
			return plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePlanRepo) FirstByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	plan, ok := r.plans[priceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return plan, nil
}

func (r *fakePlanRepo) Find(ctx context.Context) ([]*model.Plan, error) {
	var out []*model.Plan
	for _, plan := range r.plans {
		out = append(out, plan)
	}
	return out, nil
}

func (r *fakePlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	r.plans[plan.StripePriceID] = plan
	return nil
}

func (r *fakePlanRepo) Updates(ctx context.Context, planID uint, columns map[string]interface{}) (int64, error) {
	return 1, nil
}

func (r *fakePlanRepo) Delete(ctx context.Context, planID uint) error { return nil }

type fakeSubRepo struct {
	records map[string]*model.Subscription
}

func (r *fakeSubRepo) FirstByStripeID(ctx context.Context, id string) (*model.Subscription, error) {
	sub, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *fakeSubRepo) FindByUserID(ctx context.Context, userID uint) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for _, sub := range r.records {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) Upsert(ctx context.Context, sub *model.Subscription) error {
	if existing, ok := r.records[sub.StripeSubscriptionID]; ok {
		existing.Status = sub.Status
		existing.PlanID = sub.PlanID
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		return nil
	}
	r.records[sub.StripeSubscriptionID] = sub
	return nil
}

func (r *fakeSubRepo) Updates(ctx context.Context, id string, columns map[string]interface{}) (int64, error) {
	sub, ok := r.records[id]
	if !ok {
		return 0, nil
	}
	if v, ok := columns["cancel_at_period_end"].(bool); ok {
		sub.CancelAtPeriodEnd = v
	}
	if v, ok := columns["status"].(string); ok {
		sub.Status = v
	}
	return 1, nil
}

type fakeProfileRepo struct {
	profiles map[uint]*model.UserProfile
	writes   int
}

func (r *fakeProfileRepo) WithTx(tx *gorm.DB) users.ProfileRepository { return r }

func (r *fakeProfileRepo) FirstByUserID(ctx context.Context, userID uint) (*model.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *fakeProfileRepo) FirstByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error) {
	for _, profile := range r.profiles {
		if profile.StripeCustomerID == customerID {
			return profile, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProfileRepo) FirstByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.UserProfile, error) {
	for _, profile := range r.profiles {
		if profile.StripeSubscriptionID == subscriptionID {
			return profile, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProfileRepo) Create(ctx context.Context, profile *model.UserProfile) error {
	r.profiles[profile.UserID] = profile
	return nil
}

func (r *fakeProfileRepo) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return 0, nil
	}
	r.writes++
	if v, ok := columns["stripe_customer_id"].(string); ok {
		profile.StripeCustomerID = v
	}
	if v, ok := columns["stripe_payment_method_id"].(string); ok {
		profile.StripePaymentMethodID = v
	}
	if v, ok := columns["stripe_subscription_id"].(string); ok {
		profile.StripeSubscriptionID = v
	}
	if v, ok := columns["subscription_status"].(string); ok {
		profile.SubscriptionStatus = v
	}
	if v, ok := columns["cancel_at_period_end"].(bool); ok {
		profile.CancelAtPeriodEnd = v
	}
	if v, present := columns["current_period_end"]; present {
		if end, ok := v.(time.Time); ok {
			profile.CurrentPeriodEnd = &end
		} else {
			profile.CurrentPeriodEnd = nil
		}
	}
	if v, ok := columns["card_brand"].(string); ok {
		profile.CardBrand = v
	}
	if v, ok := columns["card_last4"].(string); ok {
		profile.CardLast4 = v
	}
	return 1, nil
}

type billingFixture struct {
	svc      *SubscriptionService
	gateway  *fakeGateway
	plans    *fakePlanRepo
	subs     *fakeSubRepo
	profiles *fakeProfileRepo
}

func newBillingFixture() *billingFixture {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	f := &billingFixture{
		gateway: &fakeGateway{
			nextCustomerID: "cus_123",
			card:           &Card{Brand: "visa", Last4: "4242"},
			nextSubState: &SubscriptionState{
				ID:               "sub_123",
				CustomerID:       "cus_123",
				PriceID:          "price_monthly",
				Status:           model.SubscriptionStatusActive,
				CurrentPeriodEnd: periodEnd,
			},
		},
		plans: &fakePlanRepo{plans: map[string]*model.Plan{
			"price_monthly": {ID: 1, Title: "Monthly", StripePriceID: "price_monthly"},
		}},
		subs:     &fakeSubRepo{records: make(map[string]*model.Subscription)},
		profiles: &fakeProfileRepo{profiles: make(map[uint]*model.UserProfile)},
	}
	f.svc = NewSubscriptionService(f.gateway, f.plans, f.subs, f.profiles)
	return f
}

func (f *billingFixture) addProfile(userID uint, mutate func(*model.UserProfile)) {
	profile := &model.UserProfile{UserID: userID}
	if mutate != nil {
		mutate(profile)
	}
	f.profiles.profiles[userID] = profile
}

func testUser() *model.User {
	return &model.User{ID: 42, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()
	t.Run("new customer", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		record, err := f.svc.Create(ctx, testUser(), "pm_1", "price_monthly")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if f.gateway.customers != 1 {
			t.Errorf("created %d customers, want 1", f.gateway.customers)
		}
		if len(f.gateway.attached) != 0 {
			t.Errorf("attach called for a new customer")
		}
		profile := f.profiles.profiles[42]
		if profile.StripeCustomerID != "cus_123" || profile.StripeSubscriptionID != "sub_123" {
			t.Errorf("profile cache = %+v", profile)
		}
		if profile.CardBrand != "visa" || profile.CardLast4 != "4242" {
			t.Errorf("card cache = %q %q", profile.CardBrand, profile.CardLast4)
		}
		if profile.SubscriptionStatus != model.SubscriptionStatusActive {
			t.Errorf("status = %q, want active", profile.SubscriptionStatus)
		}
		if record.PlanID == nil || *record.PlanID != 1 {
			t.Errorf("record plan = %v, want 1", record.PlanID)
		}
		if _, ok := f.subs.records["sub_123"]; !ok {
			t.Errorf("durable record not written")
		}
	})
	t.Run("existing customer attaches payment method", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, func(p *model.UserProfile) { p.StripeCustomerID = "cus_123" })
		if _, err := f.svc.Create(ctx, testUser(), "pm_2", "price_monthly"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if f.gateway.customers != 0 {
			t.Errorf("created %d customers, want 0", f.gateway.customers)
		}
		if len(f.gateway.attached) != 1 || f.gateway.attached[0] != "pm_2" {
			t.Errorf("attached = %v, want [pm_2]", f.gateway.attached)
		}
	})
	t.Run("unknown price", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		_, err := f.svc.Create(ctx, testUser(), "pm_1", "price_unknown")
		if !errors.Is(err, ErrPlanNotFound) {
			t.Errorf("Create() error = %v, want ErrPlanNotFound", err)
		}
	})
	t.Run("customer failure persists nothing", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		f.gateway.customerErr = ErrCustomerCreate
		if _, err := f.svc.Create(ctx, testUser(), "pm_1", "price_monthly"); !errors.Is(err, ErrCustomerCreate) {
			t.Fatalf("Create() error = %v, want ErrCustomerCreate", err)
		}
		if f.profiles.writes != 0 {
			t.Errorf("profile written %d times after customer failure, want 0", f.profiles.writes)
		}
	})
	t.Run("subscription failure keeps customer fields", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		f.gateway.subscribeErr = ErrSubscriptionCreate
		if _, err := f.svc.Create(ctx, testUser(), "pm_1", "price_monthly"); !errors.Is(err, ErrSubscriptionCreate) {
			t.Fatalf("Create() error = %v, want ErrSubscriptionCreate", err)
		}
		profile := f.profiles.profiles[42]
		if profile.StripeCustomerID != "cus_123" || profile.StripePaymentMethodID != "pm_1" {
			t.Errorf("customer fields not kept: %+v", profile)
		}
		if profile.StripeSubscriptionID != "" {
			t.Errorf("subscription id written despite failure")
		}
	})
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	t.Run("no live subscription", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		if err := f.svc.Cancel(ctx, 42); !errors.Is(err, ErrNoActiveSubscription) {
			t.Errorf("Cancel() error = %v, want ErrNoActiveSubscription", err)
		}
	})
	t.Run("already scheduled", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
			p.CancelAtPeriodEnd = true
		})
		if err := f.svc.Cancel(ctx, 42); !errors.Is(err, ErrCancelScheduled) {
			t.Errorf("Cancel() error = %v, want ErrCancelScheduled", err)
		}
	})
	t.Run("schedules cancellation", func(t *testing.T) {
		f := newBillingFixture()
		f.gateway.remote = f.gateway.nextSubState
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
		})
		f.subs.records["sub_123"] = &model.Subscription{StripeSubscriptionID: "sub_123", UserID: 42}
		if err := f.svc.Cancel(ctx, 42); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if !f.profiles.profiles[42].CancelAtPeriodEnd {
			t.Errorf("cache flag not mirrored")
		}
		if !f.subs.records["sub_123"].CancelAtPeriodEnd {
			t.Errorf("durable record flag not mirrored")
		}
	})
	t.Run("gone upstream clears cache", func(t *testing.T) {
		f := newBillingFixture()
		f.gateway.cancelErr = ErrSubscriptionGone
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
		})
		if err := f.svc.Cancel(ctx, 42); !errors.Is(err, ErrNoActiveSubscription) {
			t.Fatalf("Cancel() error = %v, want ErrNoActiveSubscription", err)
		}
		if got := f.profiles.profiles[42].SubscriptionStatus; got != model.SubscriptionStatusCanceled {
			t.Errorf("status = %q, want canceled", got)
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	t.Run("no subscription is a no-op", func(t *testing.T) {
		f := newBillingFixture()
		f.addProfile(42, nil)
		if _, err := f.svc.Reconcile(ctx, 42); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if f.profiles.writes != 0 {
			t.Errorf("profile written %d times, want 0", f.profiles.writes)
		}
	})
	t.Run("in sync writes nothing", func(t *testing.T) {
		f := newBillingFixture()
		f.gateway.remote = &SubscriptionState{
			ID: "sub_123", CustomerID: "cus_123", Status: model.SubscriptionStatusActive,
			CurrentPeriodEnd: periodEnd,
		}
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
			p.CurrentPeriodEnd = &periodEnd
		})
		if _, err := f.svc.Reconcile(ctx, 42); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if f.profiles.writes != 0 {
			t.Errorf("profile written %d times, want 0", f.profiles.writes)
		}
	})
	t.Run("drift refreshes cache and record", func(t *testing.T) {
		f := newBillingFixture()
		f.gateway.remote = &SubscriptionState{
			ID: "sub_123", CustomerID: "cus_123", PriceID: "price_monthly",
			Status: model.SubscriptionStatusPastDue, CurrentPeriodEnd: periodEnd,
		}
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
			p.CurrentPeriodEnd = &periodEnd
		})
		profile, err := f.svc.Reconcile(ctx, 42)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if profile.SubscriptionStatus != model.SubscriptionStatusPastDue {
			t.Errorf("status = %q, want past_due", profile.SubscriptionStatus)
		}
		record := f.subs.records["sub_123"]
		if record == nil || record.Status != model.SubscriptionStatusPastDue {
			t.Errorf("durable record = %+v", record)
		}
	})
	t.Run("deleted upstream resolves to canceled", func(t *testing.T) {
		f := newBillingFixture()
		f.gateway.remoteErr = ErrSubscriptionGone
		f.addProfile(42, func(p *model.UserProfile) {
			p.StripeSubscriptionID = "sub_123"
			p.SubscriptionStatus = model.SubscriptionStatusActive
		})
		profile, err := f.svc.Reconcile(ctx, 42)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if profile.SubscriptionStatus != model.SubscriptionStatusCanceled {
			t.Errorf("status = %q, want canceled", profile.SubscriptionStatus)
		}
		if profile.StripeSubscriptionID != "" {
			t.Errorf("subscription id = %q, want empty", profile.StripeSubscriptionID)
		}

		// A second reconcile stops at the no-subscription guard without
		// touching the gateway or the profile again.
		writes := f.profiles.writes
		f.gateway.remoteErr = errors.New("gateway must not be called again")
		if _, err := f.svc.Reconcile(ctx, 42); err != nil {
			t.Fatalf("second Reconcile() error = %v", err)
		}
		if f.profiles.writes != writes {
			t.Errorf("second reconcile wrote again: writes %d -> %d", writes, f.profiles.writes)
		}
	})
}
