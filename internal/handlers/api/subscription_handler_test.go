package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/auth"
	"github.com/nobilishq/nobilis-server/internal/billing"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type stubGateway struct {
	createSubscriptionErr error
}

func (g *stubGateway) CreateCustomer(ctx context.Context, email string, name string, paymentMethodID string) (string, error) {
	return "cus_test", nil
}

func (g *stubGateway) AttachPaymentMethod(ctx context.Context, customerID string, paymentMethodID string) error {
	return nil
}

func (g *stubGateway) GetCard(ctx context.Context, paymentMethodID string) (*billing.Card, error) {
	return &billing.Card{Brand: "visa", Last4: "4242"}, nil
}

func (g *stubGateway) CreateSubscription(ctx context.Context, customerID string, priceID string) (*billing.SubscriptionState, error) {
	return nil, g.createSubscriptionErr
}

func (g *stubGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billing.SubscriptionState, error) {
	return nil, billing.ErrSubscriptionGone
}

func (g *stubGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.SubscriptionState, error) {
	return nil, billing.ErrSubscriptionGone
}

type stubPlanRepo struct {
	plan *model.Plan
}

func (r *stubPlanRepo) FirstByID(ctx context.Context, planID uint) (*model.Plan, error) {
	return r.plan, nil
}

func (r *stubPlanRepo) FirstByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	if r.plan == nil || r.plan.StripePriceID != priceID {
		return nil, gorm.ErrRecordNotFound
	}
	return r.plan, nil
}

func (r *stubPlanRepo) Find(ctx context.Context) ([]*model.Plan, error) {
	return []*model.Plan{r.plan}, nil
}

func (r *stubPlanRepo) Create(ctx context.Context, plan *model.Plan) error { return nil }

func (r *stubPlanRepo) Updates(ctx context.Context, planID uint, columns map[string]interface{}) (int64, error) {
	return 1, nil
}

func (r *stubPlanRepo) Delete(ctx context.Context, planID uint) error { return nil }

type stubSubRepo struct{}

func (r *stubSubRepo) FirstByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSubRepo) FindByUserID(ctx context.Context, userID uint) ([]*model.Subscription, error) {
	return nil, nil
}

func (r *stubSubRepo) Upsert(ctx context.Context, sub *model.Subscription) error { return nil }

func (r *stubSubRepo) Updates(ctx context.Context, stripeSubscriptionID string, columns map[string]interface{}) (int64, error) {
	return 1, nil
}

type stubProfileRepo struct {
	profile *model.UserProfile
}

func (r *stubProfileRepo) WithTx(tx *gorm.DB) users.ProfileRepository { return r }

func (r *stubProfileRepo) FirstByUserID(ctx context.Context, userID uint) (*model.UserProfile, error) {
	return r.profile, nil
}

func (r *stubProfileRepo) FirstByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error) {
	return r.profile, nil
}

func (r *stubProfileRepo) FirstByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.UserProfile, error) {
	return r.profile, nil
}

func (r *stubProfileRepo) Create(ctx context.Context, profile *model.UserProfile) error { return nil }

func (r *stubProfileRepo) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	return 1, nil
}

type stubUserRepo struct {
	user *model.User
}

func (r *stubUserRepo) WithTx(tx *gorm.DB) users.UserRepository { return r }

func (r *stubUserRepo) FirstByID(ctx context.Context, userID uint) (*model.User, error) {
	return r.user, nil
}

func (r *stubUserRepo) FirstByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.user, nil
}

func (r *stubUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return true, nil
}

func (r *stubUserRepo) FindAdmins(ctx context.Context) ([]*model.User, error) { return nil, nil }

func (r *stubUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (r *stubUserRepo) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	return 1, nil
}

func newSubscribeApp(t *testing.T, gateway *stubGateway) *fiber.App {
	t.Helper()
	planRepo := &stubPlanRepo{plan: &model.Plan{ID: 3, Title: "Basic", StripePriceID: "price_basic"}}
	profileRepo := &stubProfileRepo{profile: &model.UserProfile{UserID: 1}}
	billingService := billing.NewSubscriptionService(gateway, planRepo, &stubSubRepo{}, profileRepo)
	userRepo := &stubUserRepo{user: &model.User{ID: 1, Email: "member@example.com", FirstName: "Jo", LastName: "Member"}}
	userService := users.NewUserService(nil, userRepo, profileRepo, nil, nil, nil)
	tokens := auth.NewTokenService("test-master-key")
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	handler := NewSubscriptionHandler(billingService, userService)
	app.Post("/subscriptions", middlewares.Authenticate(tokens), handler.PostSubscribe)
	return app
}

func subscribeRequest(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	tokens := auth.NewTokenService("test-master-key")
	pair, err := tokens.IssueTokenPair(context.Background(), 1, "member@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	body := `{"paymentMethodId":"pm_card","priceId":"price_basic"}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestPostSubscribeDeclineIsClientError(t *testing.T) {
	gateway := &stubGateway{
		createSubscriptionErr: fmt.Errorf("%w: card_declined", billing.ErrSubscriptionCreate),
	}
	app := newSubscribeApp(t, gateway)

	resp := subscribeRequest(t, app)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope.Error == nil || envelope.Error.Code != fiber.StatusBadRequest {
		t.Errorf("error body = %+v, want a bad request error", envelope.Error)
	}
}

func TestPostSubscribeProviderOutageIsGatewayError(t *testing.T) {
	gateway := &stubGateway{
		createSubscriptionErr: fmt.Errorf("%w: %w: api_error", billing.ErrSubscriptionCreate, billing.ErrUpstream),
	}
	app := newSubscribeApp(t, gateway)

	resp := subscribeRequest(t, app)
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusBadGateway)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope.Error == nil || envelope.Error.Code != fiber.StatusBadGateway {
		t.Errorf("error body = %+v, want a bad gateway error", envelope.Error)
	}
}
