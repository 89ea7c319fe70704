package notifications

import (
	"context"

	"github.com/nobilishq/nobilis-server/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	FirstByID(ctx context.Context, notificationID uint) (*model.Notification, error)
	FindByRecipient(ctx context.Context, recipientID uint, unreadOnly bool, limit int) ([]*model.Notification, error)
	CountUnread(ctx context.Context, recipientID uint) (int64, error)
	Create(ctx context.Context, notification *model.Notification) error
	// MarkRead flips one notification owned by the recipient, reporting the
	// number of rows touched so the service can distinguish missing rows.
	MarkRead(ctx context.Context, recipientID uint, notificationID uint) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) FirstByID(ctx context.Context, notificationID uint) (*model.Notification, error) {
	var notification model.Notification
	err := r.db.WithContext(ctx).First(&notification, "id = ?", notificationID).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) FindByRecipient(ctx context.Context, recipientID uint, unreadOnly bool, limit int) ([]*model.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var notifications []*model.Notification
	err := query.Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID uint, notificationID uint) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Update("is_read", true)
	return ret.RowsAffected, ret.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	return ret.RowsAffected, ret.Error
}
