package model

import "time"

// ActivationToken is a single-use credential that lets a newly approved or
// invited account set its password. The row is deleted when consumed.
type ActivationToken struct {
	ID        uint      `gorm:"primarykey;autoIncrement"`
	Email     string    `gorm:"uniqueIndex;size:256;not null"`
	Token     string    `gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (t *ActivationToken) Expired() bool {
	return time.Now().After(t.ExpiresAt)
}
