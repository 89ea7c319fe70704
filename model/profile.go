package model

import (
	"time"

	"gorm.io/gorm"
)

// UserProfile holds member profile data and the locally cached billing state.
// The Stripe* fields mirror the most recent known state at the payment
// processor; they may go stale between reconciliation events and are never
// treated as the source of truth.
type UserProfile struct {
	ID          uint   `gorm:"primarykey"`
	UserID      uint   `gorm:"uniqueIndex;not null"`
	PhoneNumber string `gorm:"size:20"`
	City        string `gorm:"size:60"`
	Occupation  string `gorm:"size:60"`
	Biography   string `gorm:"type:text"`

	StripeCustomerID      string `gorm:"size:255;index"`
	StripeSubscriptionID  string `gorm:"size:255;index"`
	StripePaymentMethodID string `gorm:"size:255"`
	SubscriptionStatus    string `gorm:"size:32"`
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool   `gorm:"default:false;not null"`
	CardBrand             string `gorm:"size:20"`
	CardLast4             string `gorm:"size:4"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}

// HasSubscription reports whether the cache currently points at a processor
// subscription at all, regardless of its status.
func (p *UserProfile) HasSubscription() bool {
	return p.StripeSubscriptionID != ""
}
