package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a DANZ account. Farcaster-originated accounts carry external_id "fc-<fid>".
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ExternalID     string     `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	FarcasterFID   int64      `gorm:"column:farcaster_fid;uniqueIndex;not null" json:"farcaster_fid"`
	Username       string     `gorm:"size:64" json:"username"`
	DisplayName    string     `gorm:"size:128" json:"display_name"`
	AvatarURL      string     `gorm:"size:512" json:"avatar_url"`
	XP             int64      `gorm:"not null;default:0" json:"xp"`
	Level          int        `gorm:"not null;default:1" json:"level"`
	CurrentStreak  int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak  int        `gorm:"not null;default:0" json:"longest_streak"`
	TotalCheckins  int        `gorm:"not null;default:0" json:"total_checkins"`
	DanzBalance    int64      `gorm:"not null;default:0" json:"danz_balance"`
	LastCheckinDay string     `gorm:"size:10" json:"last_checkin_day"`
	LastCheckinAt  *time.Time `json:"last_checkin_at"`
	LastActiveAt   *time.Time `json:"last_active_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps and the starting level are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Level < 1 {
		u.Level = 1
	}
	return nil
}
