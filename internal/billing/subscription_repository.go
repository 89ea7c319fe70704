package billing

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	FirstByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	FindByUserID(ctx context.Context, userID uint) ([]*model.Subscription, error)
	// Upsert inserts the record or, when a row with the same Stripe
	// subscription id exists, refreshes its mutable fields.
	Upsert(ctx context.Context, sub *model.Subscription) error
	Updates(ctx context.Context, stripeSubscriptionID string, columns map[string]interface{}) (int64, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) FirstByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).First(&sub, "stripe_subscription_id = ?", stripeSubscriptionID).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindByUserID(ctx context.Context, userID uint) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "plan_id", "current_period_end", "cancel_at_period_end", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *subscriptionRepository) Updates(ctx context.Context, stripeSubscriptionID string, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(columns)
	return ret.RowsAffected, ret.Error
}
