package model

import "time"

// Role is a capability marker assigned to accounts and team members.
type Role struct {
	ID          uint   `gorm:"primarykey"`
	Code        string `gorm:"uniqueIndex;size:32;not null"`
	Name        string `gorm:"size:64;not null"`
	Description string `gorm:"size:256"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	RoleCodeMember    = "member"
	RoleCodeModerator = "moderator"
	RoleCodeAdmin     = "admin"
)
