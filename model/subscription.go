package model

import (
	"time"

	"gorm.io/gorm"
)

// Subscription statuses mirrored from the payment processor.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription is the durable history record of a processor subscription,
// keyed by the external subscription id and updated via upsert. It is kept
// independent of the per-profile cache fields.
type Subscription struct {
	ID                   uint   `gorm:"primarykey"`
	StripeSubscriptionID string `gorm:"uniqueIndex;size:255;not null"`
	StripeCustomerID     string `gorm:"size:255;index"`
	UserID               uint   `gorm:"index;not null"`
	PlanID               *uint  `gorm:"index"`
	Status               string `gorm:"size:32;not null"`
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool `gorm:"default:false;not null"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == 0 {
		s.ID = GenerateID()
	}
	return nil
}
