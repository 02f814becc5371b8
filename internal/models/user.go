package models

import (
	"time"

	"affluence/internal/domain"
)

// User is the identity anchor for every ledger record. Users are never hard
// deleted: transactions reference them forever.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName     string    `gorm:"size:128" json:"full_name"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	ReferralCode string    `gorm:"uniqueIndex;size:16;not null" json:"referral_code"`
	ReferredBy   *string   `gorm:"index;size:16" json:"referred_by"` // referral_code of the inviter, set once
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Role         string    `gorm:"size:20;not null;default:'user';index" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Balance *Balance `gorm:"foreignKey:UserID" json:"balance,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool {
	return u.Role == domain.RoleAdmin || u.Role == domain.RoleSubadmin
}
