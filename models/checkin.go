package models

import (
	"time"

	"gorm.io/datatypes"
)

// Reflection is the optional post-dance note attached to a check-in.
type Reflection struct {
	Feeling  string   `json:"feeling,omitempty"`
	Benefits []string `json:"benefits,omitempty"`
	Note     string   `json:"note,omitempty"`
}

// Checkin is the immutable record of one user's answer for one calendar day.
// The (user_id, checkin_day) unique index makes the daily reward exactly-once.
type Checkin struct {
	ID              uint                           `gorm:"primaryKey" json:"id"`
	UserID          uint                           `gorm:"not null;uniqueIndex:idx_checkin_user_day" json:"user_id"`
	CheckinDay      string                         `gorm:"size:10;not null;uniqueIndex:idx_checkin_user_day;index" json:"checkin_day"`
	CheckedInAt     time.Time                      `gorm:"not null" json:"checked_in_at"`
	DidDance        bool                           `gorm:"not null" json:"did_dance"`
	StreakCount     int                            `gorm:"not null;default:0" json:"streak_count"`
	BaseXP          int                            `gorm:"not null;default:0" json:"base_xp"`
	StreakBonus     int                            `gorm:"not null;default:0" json:"streak_bonus"`
	ReflectionBonus int                            `gorm:"not null;default:0" json:"reflection_bonus"`
	XPEarned        int                            `gorm:"not null;default:0" json:"xp_earned"`
	Reflection      datatypes.JSONType[Reflection] `json:"reflection"`
	CreatedAt       time.Time                      `json:"created_at"`
}
