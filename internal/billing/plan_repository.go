package billing

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type PlanRepository interface {
	FirstByID(ctx context.Context, planID uint) (*model.Plan, error)
	FirstByPriceID(ctx context.Context, priceID string) (*model.Plan, error)
	Find(ctx context.Context) ([]*model.Plan, error)
	Create(ctx context.Context, plan *model.Plan) error
	Updates(ctx context.Context, planID uint, columns map[string]interface{}) (int64, error)
	Delete(ctx context.Context, planID uint) error
}

type planRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) FirstByID(ctx context.Context, planID uint) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", planID).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepository) FirstByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	var plan model.Plan
	err := r.db.WithContext(ctx).First(&plan, "stripe_price_id = ?", priceID).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *planRepository) Find(ctx context.Context) ([]*model.Plan, error) {
	var plans []*model.Plan
	err := r.db.WithContext(ctx).Order("price_cents ASC").Find(&plans).Error
	return plans, err
}

func (r *planRepository) Create(ctx context.Context, plan *model.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *planRepository) Updates(ctx context.Context, planID uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Plan{}).
		Where("id = ?", planID).
		Updates(columns)
	return ret.RowsAffected, ret.Error
}

func (r *planRepository) Delete(ctx context.Context, planID uint) error {
	return r.db.WithContext(ctx).Delete(&model.Plan{}, "id = ?", planID).Error
}
