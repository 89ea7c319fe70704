package waitinglist

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type ReasonRepository interface {
	FirstByID(ctx context.Context, reasonID uint) (*model.RejectionReason, error)
	Find(ctx context.Context) ([]*model.RejectionReason, error)
	Create(ctx context.Context, reason *model.RejectionReason) error
}

type reasonRepository struct {
	db *gorm.DB
}

func (r *reasonRepository) FirstByID(ctx context.Context, reasonID uint) (*model.RejectionReason, error) {
	var reason model.RejectionReason
	err := r.db.WithContext(ctx).First(&reason, "id = ?", reasonID).Error
	if err != nil {
		return nil, err
	}
	return &reason, nil
}

func (r *reasonRepository) Find(ctx context.Context) ([]*model.RejectionReason, error) {
	var reasons []*model.RejectionReason
	err := r.db.WithContext(ctx).Order("code").Find(&reasons).Error
	return reasons, err
}

func (r *reasonRepository) Create(ctx context.Context, reason *model.RejectionReason) error {
	return r.db.WithContext(ctx).Create(reason).Error
}

func NewReasonRepository(db *gorm.DB) ReasonRepository {
	return &reasonRepository{db}
}
