package model

import (
	"time"

	"gorm.io/gorm"
)

// User stores account identity and login credentials. Accounts created by
// admission approval start inactive until the activation token is consumed.
type User struct {
	ID          uint   `gorm:"primarykey"`
	Email       string `gorm:"uniqueIndex:idx_user_email;size:256;not null"`
	FirstName   string `gorm:"size:64;not null"`
	LastName    string `gorm:"size:64;not null"`
	Password    string `gorm:"size:64;not null"`
	IsActive    bool   `gorm:"default:true;not null"`
	IsAdmin     bool   `gorm:"default:false;not null"`
	RoleID      *uint  `gorm:"index"`
	Role        *Role  `gorm:"foreignKey:RoleID"`
	InvitedByID *uint  `gorm:"index"`
	DateJoined  time.Time
	Profile     *UserProfile `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	return nil
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
