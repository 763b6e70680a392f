package models

import "time"

// EncouragementMessage is a nudge delivered to a party member's in-app inbox.
type EncouragementMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"size:32;not null" json:"type"`
	FromUserID *uint     `gorm:"index" json:"from_user_id"`
	ToUserID   uint      `gorm:"index;not null" json:"to_user_id"`
	PartyID    *uint     `gorm:"index" json:"party_id"`
	Message    string    `gorm:"size:500;not null" json:"message"`
	Emoji      string    `gorm:"size:32" json:"emoji"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
	SentVia    string    `gorm:"size:24;not null;default:'in_app'" json:"sent_via"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`
}
