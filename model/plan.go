package model

import (
	"time"

	"gorm.io/datatypes"
)

// Plan maps a local membership tier to a Stripe price. PriceCents is in
// integer minor units, never floating currency.
type Plan struct {
	ID            uint           `gorm:"primarykey"`
	Title         string         `gorm:"size:100;not null"`
	StripePriceID string         `gorm:"uniqueIndex;size:255;not null"`
	Interval      string         `gorm:"size:20"` // month or year
	PriceCents    int64          `gorm:"not null"`
	Currency      string         `gorm:"size:3;default:'usd';not null"`
	Description   string         `gorm:"size:256"`
	Features      datatypes.JSON `gorm:"type:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
