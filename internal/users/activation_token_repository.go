package users

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type ActivationTokenRepository interface {
	WithTx(tx *gorm.DB) ActivationTokenRepository
	FirstByToken(ctx context.Context, token string) (*model.ActivationToken, error)
	Create(ctx context.Context, token *model.ActivationToken) error
	DeleteByEmail(ctx context.Context, email string) (int64, error)
	DeleteByID(ctx context.Context, tokenID uint) (int64, error)
}

type activationTokenRepository struct {
	db *gorm.DB
}

func (r *activationTokenRepository) WithTx(tx *gorm.DB) ActivationTokenRepository {
	return NewActivationTokenRepository(tx)
}

func (r *activationTokenRepository) FirstByToken(ctx context.Context, token string) (*model.ActivationToken, error) {
	var record model.ActivationToken
	err := r.db.WithContext(ctx).First(&record, "token = ?", token).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *activationTokenRepository) Create(ctx context.Context, token *model.ActivationToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *activationTokenRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	ret := r.db.WithContext(ctx).Delete(&model.ActivationToken{}, "email = ?", email)
	return ret.RowsAffected, ret.Error
}

func (r *activationTokenRepository) DeleteByID(ctx context.Context, tokenID uint) (int64, error) {
	ret := r.db.WithContext(ctx).Delete(&model.ActivationToken{}, "id = ?", tokenID)
	return ret.RowsAffected, ret.Error
}

func NewActivationTokenRepository(db *gorm.DB) ActivationTokenRepository {
	return &activationTokenRepository{db}
}
