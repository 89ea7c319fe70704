package moderation

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type InvitationRepository interface {
	FirstByToken(ctx context.Context, token string) (*model.ModeratorInvitation, error)
	Find(ctx context.Context) ([]*model.ModeratorInvitation, error)
	Create(ctx context.Context, invitation *model.ModeratorInvitation) error
	DeleteByID(ctx context.Context, invitationID uint) error
}

type ModeratorProfileRepository interface {
	Create(ctx context.Context, profile *model.ModeratorProfile) error
}

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) FirstByToken(ctx context.Context, token string) (*model.ModeratorInvitation, error) {
	var invitation model.ModeratorInvitation
	err := r.db.WithContext(ctx).First(&invitation, "token = ?", token).Error
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) Find(ctx context.Context) ([]*model.ModeratorInvitation, error) {
	var invitations []*model.ModeratorInvitation
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&invitations).Error
	return invitations, err
}

func (r *invitationRepository) Create(ctx context.Context, invitation *model.ModeratorInvitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *invitationRepository) DeleteByID(ctx context.Context, invitationID uint) error {
	return r.db.WithContext(ctx).Delete(&model.ModeratorInvitation{}, "id = ?", invitationID).Error
}

type moderatorProfileRepository struct {
	db *gorm.DB
}

func NewModeratorProfileRepository(db *gorm.DB) ModeratorProfileRepository {
	return &moderatorProfileRepository{db: db}
}

func (r *moderatorProfileRepository) Create(ctx context.Context, profile *model.ModeratorProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}
