package model

import (
	"time"

	"gorm.io/gorm"
)

// Target kinds for the polymorphic notification reference.
const (
	TargetTypeApplicant    = "applicant"
	TargetTypeSubscription = "subscription"
	TargetTypeTeam         = "team"
)

// Notification is a persisted event addressed to one recipient. Rows are the
// source of truth for read state; the realtime channel is delivery only.
type Notification struct {
	ID          uint   `gorm:"primarykey"`
	RecipientID uint   `gorm:"index;not null"`
	ActorID     *uint  `gorm:"index"`
	Verb        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	TargetType  string `gorm:"size:32"`
	TargetID    *uint
	IsRead      bool `gorm:"default:false;not null;index"`
	CreatedAt   time.Time
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == 0 {
		n.ID = GenerateID()
	}
	return nil
}
