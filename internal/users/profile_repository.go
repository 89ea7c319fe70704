package users

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type ProfileRepository interface {
	WithTx(tx *gorm.DB) ProfileRepository
	FirstByUserID(ctx context.Context, userID uint) (*model.UserProfile, error)
	FirstByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error)
	FirstByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.UserProfile, error)
	Create(ctx context.Context, profile *model.UserProfile) error
	Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error)
}

type profileRepository struct {
	db *gorm.DB
}

func (r *profileRepository) WithTx(tx *gorm.DB) ProfileRepository {
	return NewProfileRepository(tx)
}

func (r *profileRepository) FirstByUserID(ctx context.Context, userID uint) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) FirstByStripeCustomerID(ctx context.Context, customerID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "stripe_customer_id = ?", customerID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) FirstByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).First(&profile, "stripe_subscription_id = ?", subscriptionID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *model.UserProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *profileRepository) Updates(ctx context.Context, userID uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.UserProfile{}).Where("user_id = ?", userID).Updates(columns)
	return ret.RowsAffected, ret.Error
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db}
}
