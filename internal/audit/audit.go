package audit

import (
	"context"
	"sync"

	"github.com/nobilishq/nobilis-server/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeLoginSuccess         = "login_success"
	EventTypeLoginFailure         = "login_failure"
	EventTypeAccountActivated     = "account_activated"
	EventTypePasswordReset        = "password_reset"
	EventTypeApplicantApproved    = "applicant_approved"
	EventTypeApplicantRejected    = "applicant_rejected"
	EventTypeSubscriptionCreated  = "subscription_created"
	EventTypeSubscriptionCanceled = "subscription_canceled"
)

type LoginRecord struct {
	UserID    uint
	Email     string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

type DecisionRecord struct {
	ActorID     uint
	Email       string
	ApplicantID uint
	Approved    bool
	Reason      string
	IP          string
	UserAgent   string
}

type SubscriptionRecord struct {
	UserID         uint
	Email          string
	SubscriptionID uint
	Canceled       bool
}

func RecordLogin(ctx context.Context, record LoginRecord) error {
	eventType := EventTypeLoginFailure
	if record.Success {
		eventType = EventTypeLoginSuccess
	}
	return auditRepo.RecordEvent(ctx, &model.AuditEvent{
		UserID:    record.UserID,
		Email:     record.Email,
		EventType: eventType,
		IP:        record.IP,
		UserAgent: record.UserAgent,
		Reason:    record.Reason,
	})
}

func RecordDecision(ctx context.Context, record DecisionRecord) error {
	eventType := EventTypeApplicantRejected
	if record.Approved {
		eventType = EventTypeApplicantApproved
	}
	return auditRepo.RecordEvent(ctx, &model.AuditEvent{
		UserID:    record.ActorID,
		Email:     record.Email,
		EventType: eventType,
		TargetID:  record.ApplicantID,
		Reason:    record.Reason,
		IP:        record.IP,
		UserAgent: record.UserAgent,
	})
}

func RecordSubscription(ctx context.Context, record SubscriptionRecord) error {
	eventType := EventTypeSubscriptionCreated
	if record.Canceled {
		eventType = EventTypeSubscriptionCanceled
	}
	return auditRepo.RecordEvent(ctx, &model.AuditEvent{
		UserID:    record.UserID,
		Email:     record.Email,
		EventType: eventType,
		TargetID:  record.SubscriptionID,
	})
}

func RecordEvent(ctx context.Context, userID uint, email string, eventType string) error {
	return auditRepo.RecordEvent(ctx, &model.AuditEvent{
		UserID:    userID,
		Email:     email,
		EventType: eventType,
	})
}
