package model

import "time"

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint      `gorm:"index"`                  // acting user, zero for anonymous paths
	Email     string    `gorm:"size:256;index"`         // snapshot of the actor email at event time
	EventType string    `gorm:"size:64;not null;index"` // login_success, applicant_approved...
	TargetID  uint      `gorm:"index"`                  // affected row id (applicant, subscription...)
	Reason    string    `gorm:"size:512"`               // failure reason or context
	IP        string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
