package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nobilishq/nobilis-server/model"
	"github.com/nobilishq/nobilis-server/params"
	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of the redis client used for realtime fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService persists notifications and pushes them to connected
// clients. The database row is authoritative; the redis publish is delivery
// only and a missing subscriber is not an error.
type NotificationService struct {
	repo      NotificationRepository
	publisher Publisher
}

func NewNotificationService(repo NotificationRepository, publisher Publisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher}
}

func channelFor(recipientID uint) string {
	return fmt.Sprintf("%s%d", params.NotifyChannelPrefix, recipientID)
}

// Notify creates the notification row and publishes it to the recipient's
// channel. Publish failures are logged and swallowed so callers never fail
// because realtime delivery did.
func (s *NotificationService) Notify(ctx context.Context, recipientID uint, actorID *uint, verb string, description string, targetType string, targetID *uint) error {
	notification := &model.Notification{
		RecipientID: recipientID,
		ActorID:     actorID,
		Verb:        verb,
		Description: description,
		TargetType:  targetType,
		TargetID:    targetID,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}
	s.publish(ctx, notification)
	return nil
}

func (s *NotificationService) publish(ctx context.Context, notification *model.Notification) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		slog.Error("Could not marshal notification", "error", err, "notificationId", notification.ID)
		return
	}
	if err := s.publisher.Publish(ctx, channelFor(notification.RecipientID), payload).Err(); err != nil {
		slog.Error("Could not publish notification", "error", err, "recipientId", notification.RecipientID)
	}
}

// List returns notifications for one recipient, newest first.
func (s *NotificationService) List(ctx context.Context, recipientID uint, unreadOnly bool, limit int) ([]*model.Notification, error) {
	return s.repo.FindByRecipient(ctx, recipientID, unreadOnly, limit)
}

// CountUnread returns how many notifications the recipient has not read.
func (s *NotificationService) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// MarkRead marks one notification read. Marking an already read row again
// is not an error; a row owned by another recipient is reported as missing.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID uint, notificationID uint) error {
	rows, err := s.repo.MarkRead(ctx, recipientID, notificationID)
	if err != nil {
		return err
	}
	if rows == 0 {
		notification, err := s.repo.FirstByID(ctx, notificationID)
		if err != nil || notification.RecipientID != recipientID {
			return ErrNotificationNotFound
		}
	}
	return nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uint) error {
	_, err := s.repo.MarkAllRead(ctx, recipientID)
	return err
}
