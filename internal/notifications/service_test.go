package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nobilishq/nobilis-server/model"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type fakeNotificationRepo struct {
	rows   map[uint]*model.Notification
	nextID uint
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{rows: make(map[uint]*model.Notification)}
}

func (r *fakeNotificationRepo) FirstByID(ctx context.Context, id uint) (*model.Notification, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeNotificationRepo) FindByRecipient(ctx context.Context, recipientID uint, unreadOnly bool, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, row := range r.rows {
		if row.RecipientID != recipientID {
			continue
		}
		if unreadOnly && row.IsRead {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeNotificationRepo) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	for _, row := range r.rows {
		if row.RecipientID == recipientID && !row.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) Create(ctx context.Context, notification *model.Notification) error {
	r.nextID++
	notification.ID = r.nextID
	r.rows[notification.ID] = notification
	return nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, recipientID uint, id uint) (int64, error) {
	row, ok := r.rows[id]
	if !ok || row.RecipientID != recipientID || row.IsRead {
		return 0, nil
	}
	row.IsRead = true
	return 1, nil
}

func (r *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	for _, row := range r.rows {
		if row.RecipientID == recipientID && !row.IsRead {
			row.IsRead = true
			count++
		}
	}
	return count, nil
}

type publishedMsg struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	published []publishedMsg
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.published = append(p.published, publishedMsg{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	t.Run("persists and publishes", func(t *testing.T) {
		repo := newFakeNotificationRepo()
		publisher := &fakePublisher{}
		svc := NewNotificationService(repo, publisher)

		err := svc.Notify(ctx, 7, nil, "applied", "Ada joined the waiting list", model.TargetTypeApplicant, nil)
		if err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if len(repo.rows) != 1 {
			t.Fatalf("stored %d rows, want 1", len(repo.rows))
		}
		if len(publisher.published) != 1 {
			t.Fatalf("published %d messages, want 1", len(publisher.published))
		}
		msg := publisher.published[0]
		if msg.channel != "notify:user:7" {
			t.Errorf("channel = %q, want notify:user:7", msg.channel)
		}
		var row model.Notification
		if err := json.Unmarshal(msg.payload, &row); err != nil {
			t.Fatalf("payload not valid JSON: %v", err)
		}
		if row.Verb != "applied" || row.RecipientID != 7 {
			t.Errorf("payload row = %+v", row)
		}
	})
	t.Run("publish failure is swallowed", func(t *testing.T) {
		repo := newFakeNotificationRepo()
		publisher := &fakePublisher{err: errors.New("redis down")}
		svc := NewNotificationService(repo, publisher)
		if err := svc.Notify(ctx, 7, nil, "applied", "", model.TargetTypeApplicant, nil); err != nil {
			t.Errorf("Notify() error = %v, want nil", err)
		}
		if len(repo.rows) != 1 {
			t.Errorf("row not persisted despite publish failure")
		}
	})
	t.Run("nil publisher is a no-op", func(t *testing.T) {
		repo := newFakeNotificationRepo()
		svc := NewNotificationService(repo, nil)
		if err := svc.Notify(ctx, 7, nil, "applied", "", model.TargetTypeApplicant, nil); err != nil {
			t.Errorf("Notify() error = %v, want nil", err)
		}
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeNotificationRepo()
	svc := NewNotificationService(repo, nil)
	if err := svc.Notify(ctx, 7, nil, "applied", "", model.TargetTypeApplicant, nil); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if err := svc.MarkRead(ctx, 7, 1); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !repo.rows[1].IsRead {
		t.Errorf("row not marked read")
	}
	// Marking again is idempotent.
	if err := svc.MarkRead(ctx, 7, 1); err != nil {
		t.Errorf("second MarkRead() error = %v", err)
	}
	if err := svc.MarkRead(ctx, 7, 404); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkRead(missing) error = %v, want ErrNotificationNotFound", err)
	}
	// Another recipient's row must look missing, not readable.
	if err := svc.MarkRead(ctx, 8, 1); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("MarkRead(foreign) error = %v, want ErrNotificationNotFound", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeNotificationRepo()
	svc := NewNotificationService(repo, nil)
	for i := 0; i < 3; i++ {
		if err := svc.Notify(ctx, 7, nil, "applied", "", model.TargetTypeApplicant, nil); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	if err := svc.MarkAllRead(ctx, 7); err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	count, err := svc.CountUnread(ctx, 7)
	if err != nil || count != 0 {
		t.Errorf("CountUnread() = %d, %v, want 0", count, err)
	}
}
