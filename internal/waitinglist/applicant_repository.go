package waitinglist

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type ApplicantRepository interface {
	WithTx(tx *gorm.DB) ApplicantRepository
	FirstByID(ctx context.Context, applicantID uint) (*model.Applicant, error)
	Find(ctx context.Context, status model.ApplicantStatus) ([]*model.Applicant, error)
	ExistsWithStatus(ctx context.Context, email string, status model.ApplicantStatus) (bool, error)
	Create(ctx context.Context, applicant *model.Applicant) error
	// UpdateStatusIf performs an atomic conditional status transition:
	// UPDATE ... SET status = to, <columns> WHERE id = ? AND status = from.
	// The returned row count is zero when another transition won the race.
	UpdateStatusIf(ctx context.Context, applicantID uint, from, to model.ApplicantStatus, columns map[string]interface{}) (int64, error)
}

type applicantRepository struct {
	db *gorm.DB
}

func (r *applicantRepository) WithTx(tx *gorm.DB) ApplicantRepository {
	return NewApplicantRepository(tx)
}

func (r *applicantRepository) FirstByID(ctx context.Context, applicantID uint) (*model.Applicant, error) {
	var applicant model.Applicant
	err := r.db.WithContext(ctx).Preload("RejectionReason").First(&applicant, "id = ?", applicantID).Error
	if err != nil {
		return nil, err
	}
	return &applicant, nil
}

func (r *applicantRepository) Find(ctx context.Context, status model.ApplicantStatus) ([]*model.Applicant, error) {
	var applicants []*model.Applicant
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&applicants).Error
	return applicants, err
}

func (r *applicantRepository) ExistsWithStatus(ctx context.Context, email string, status model.ApplicantStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Applicant{}).
		Where("email = ? AND status = ?", email, status).
		Count(&count).Error
	return count > 0, err
}

func (r *applicantRepository) Create(ctx context.Context, applicant *model.Applicant) error {
	return r.db.WithContext(ctx).Create(applicant).Error
}

func (r *applicantRepository) UpdateStatusIf(ctx context.Context, applicantID uint, from, to model.ApplicantStatus, columns map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{"status": to}
	for col, val := range columns {
		updates[col] = val
	}
	ret := r.db.WithContext(ctx).Model(&model.Applicant{}).
		Where("id = ? AND status = ?", applicantID, from).
		Updates(updates)
	return ret.RowsAffected, ret.Error
}

func NewApplicantRepository(db *gorm.DB) ApplicantRepository {
	return &applicantRepository{db}
}
