package users

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type RoleRepository interface {
	FirstByID(ctx context.Context, roleID uint) (*model.Role, error)
	FirstByCode(ctx context.Context, code string) (*model.Role, error)
	Find(ctx context.Context) ([]*model.Role, error)
	Create(ctx context.Context, role *model.Role) error
	Updates(ctx context.Context, roleID uint, columns map[string]interface{}) (int64, error)
	Delete(ctx context.Context, roleID uint) (int64, error)
}

type roleRepository struct {
	db *gorm.DB
}

func (r *roleRepository) FirstByID(ctx context.Context, roleID uint) (*model.Role, error) {
	var role model.Role
	err := r.db.WithContext(ctx).First(&role, "id = ?", roleID).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FirstByCode(ctx context.Context, code string) (*model.Role, error) {
	var role model.Role
	err := r.db.WithContext(ctx).First(&role, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) Find(ctx context.Context) ([]*model.Role, error) {
	var roles []*model.Role
	err := r.db.WithContext(ctx).Order("code").Find(&roles).Error
	return roles, err
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepository) Updates(ctx context.Context, roleID uint, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Role{}).Where("id = ?", roleID).Updates(columns)
	return ret.RowsAffected, ret.Error
}

func (r *roleRepository) Delete(ctx context.Context, roleID uint) (int64, error) {
	ret := r.db.WithContext(ctx).Delete(&model.Role{}, "id = ?", roleID)
	return ret.RowsAffected, ret.Error
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db}
}
