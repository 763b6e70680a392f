package models

import "time"

// LinkingToken lets a signed-in user attach another identity. Only the bcrypt hash of the secret is kept.
type LinkingToken struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	TargetProvider string     `gorm:"size:32;not null" json:"target_provider"`
	SecretHash     string     `gorm:"size:255;not null" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt         *time.Time `json:"used_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
