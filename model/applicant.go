package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApplicantStatus is the admission state of a waiting-list entry. The only
// legal transitions are pending -> approved and pending -> rejected; both are
// terminal and enforced with conditional updates in the admission service.
type ApplicantStatus string

const (
	ApplicantStatusPending  ApplicantStatus = "pending"
	ApplicantStatusApproved ApplicantStatus = "approved"
	ApplicantStatusRejected ApplicantStatus = "rejected"
)

// Applicant is a waiting-list entry submitted by a prospective member.
type Applicant struct {
	ID                uint            `gorm:"primarykey"`
	FirstName         string          `gorm:"size:100;not null"`
	LastName          string          `gorm:"size:150;not null"`
	Email             string          `gorm:"size:256;not null;index"`
	PhoneNumber       string          `gorm:"size:20;not null"`
	Occupation        string          `gorm:"size:60"`
	City              string          `gorm:"size:60"`
	Referenced        string          `gorm:"size:60"`
	SurveyAnswers     datatypes.JSON  `gorm:"type:json"`
	Status            ApplicantStatus `gorm:"size:16;default:'pending';not null;index"`
	RejectionReasonID *uint           `gorm:"index"`
	RejectionReason   *RejectionReason
	Notes             string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *Applicant) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}

// RejectionReason is a catalog entry referenced by rejected applicants.
type RejectionReason struct {
	ID        uint   `gorm:"primarykey"`
	Code      string `gorm:"uniqueIndex;size:32;not null"`
	Label     string `gorm:"size:128;not null"`
	CreatedAt time.Time
}
