package moderation

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type TeamRepository interface {
	FirstByID(ctx context.Context, teamID uint) (*model.Team, error)
	Find(ctx context.Context) ([]*model.Team, error)
	Create(ctx context.Context, team *model.Team) error
	Updates(ctx context.Context, teamID uint, columns map[string]interface{}) (int64, error)
	Delete(ctx context.Context, teamID uint) error
}

type MembershipRepository interface {
	FindByTeam(ctx context.Context, teamID uint) ([]*model.TeamMembership, error)
	Create(ctx context.Context, membership *model.TeamMembership) error
	Delete(ctx context.Context, teamID uint, userID uint) (int64, error)
}

type teamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) FirstByID(ctx context.Context, teamID uint) (*model.Team, error) {
	var team model.Team
	err := r.db.WithContext(ctx).
		Preload("Members.User").
		Preload("Members.Role").
		First(&team, "id = ?", teamID).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) Find(ctx context.Context) ([]*model.Team, error) {
	var teams []*model.Team
	err := r.db.WithContext(ctx).Order("name ASC").Find(&teams).Error
	return teams, err
}

func (r *teamRepository) Create(ctx context.Context, team *model.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *teamRepository) Updates(ctx context.Context, teamID uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Team{}).
		Where("id = ?", teamID).
		Updates(columns)
	return ret.RowsAffected, ret.Error
}

func (r *teamRepository) Delete(ctx context.Context, teamID uint) error {
	return r.db.WithContext(ctx).Select("Members").Delete(&model.Team{ID: teamID}).Error
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) FindByTeam(ctx context.Context, teamID uint) ([]*model.TeamMembership, error) {
	var memberships []*model.TeamMembership
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Role").
		Where("team_id = ?", teamID).
		Order("joined_at ASC").
		Find(&memberships).Error
	return memberships, err
}

func (r *membershipRepository) Create(ctx context.Context, membership *model.TeamMembership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *membershipRepository) Delete(ctx context.Context, teamID uint, userID uint) (int64, error) {
	ret := r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&model.TeamMembership{})
	return ret.RowsAffected, ret.Error
}
