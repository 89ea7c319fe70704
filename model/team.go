package model

import (
	"time"

	"gorm.io/gorm"
)

// Team is a moderation team.
type Team struct {
	ID          uint             `gorm:"primarykey"`
	Name        string           `gorm:"uniqueIndex;size:100;not null"`
	Description string           `gorm:"type:text"`
	Members     []TeamMembership `gorm:"foreignKey:TeamID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}

// TeamMembership links a user to a team with a role. A user belongs to a
// given team at most once.
type TeamMembership struct {
	ID       uint  `gorm:"primarykey"`
	UserID   uint  `gorm:"uniqueIndex:idx_team_member;not null"`
	TeamID   uint  `gorm:"uniqueIndex:idx_team_member;not null"`
	RoleID   uint  `gorm:"not null"`
	User     *User `gorm:"foreignKey:UserID"`
	Role     *Role `gorm:"foreignKey:RoleID"`
	JoinedAt time.Time
}

func (m *TeamMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == 0 {
		m.ID = GenerateID()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return nil
}

// ModeratorInvitation is an ephemeral invite for collaborators and
// moderators; the token is a uuid embedded in the invitation email.
type ModeratorInvitation struct {
	ID          uint   `gorm:"primarykey;autoIncrement"`
	Email       string `gorm:"uniqueIndex;size:256;not null"`
	Token       string `gorm:"uniqueIndex;size:36;not null"`
	InvitedByID uint   `gorm:"index;not null"`
	CreatedAt   time.Time
}

// ModeratorProfile stores extra data for invited collaborators who hold no
// subscription.
type ModeratorProfile struct {
	ID           uint   `gorm:"primarykey"`
	UserID       uint   `gorm:"uniqueIndex;not null"`
	Organization string `gorm:"size:255"`
	Relation     string `gorm:"size:255"`
	CreatedAt    time.Time
}

func (p *ModeratorProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}
