package models

import "time"

// Party lifecycle states.
const (
	PartyStatusActive    = "active"
	PartyStatusInactive  = "inactive"
	PartyStatusDisbanded = "disbanded"
)

// Member roles.
const (
	RoleLeader   = "leader"
	RoleCoLeader = "co-leader"
	RoleMember   = "member"
)

// Party is a dance crew. Tier and multiplier are derived from the counters on read.
type Party struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	Name               string        `gorm:"size:200;not null" json:"name"`
	Description        string        `gorm:"size:800" json:"description"`
	AvatarEmoji        string        `gorm:"size:32" json:"avatar_emoji"`
	JoinCode           string        `gorm:"size:8;uniqueIndex;not null" json:"join_code"`
	CreatedBy          uint          `gorm:"index;not null" json:"created_by"`
	Status             string        `gorm:"size:16;index;not null;default:'active'" json:"status"`
	PoolType           string        `gorm:"size:16;not null;default:'intimate'" json:"pool_type"`
	IsPublic           bool          `gorm:"not null" json:"is_public"`
	ExtraSlots         int           `gorm:"not null;default:0" json:"extra_slots"`
	TotalXP            int64         `gorm:"not null;default:0" json:"total_xp"`
	WeeklyXP           int64         `gorm:"not null;default:0;index" json:"weekly_xp"`
	DailyXP            int64         `gorm:"not null;default:0" json:"daily_xp"`
	PartyStreak        int           `gorm:"not null;default:0" json:"party_streak"`
	LongestPartyStreak int           `gorm:"not null;default:0" json:"longest_party_streak"`
	BonusXPDistributed int64         `gorm:"not null;default:0" json:"bonus_xp_distributed"`
	LastRolloverDay    string        `gorm:"size:10" json:"last_rollover_day"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Members            []PartyMember `gorm:"foreignKey:PartyID" json:"members,omitempty"`
}

// PartyMember links a user to a party. A user belongs to at most one party,
// enforced by the unique index on user_id.
type PartyMember struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	PartyID            uint       `gorm:"index;not null" json:"party_id"`
	UserID             uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Role               string     `gorm:"size:16;not null;default:'member'" json:"role"`
	JoinedAt           time.Time  `gorm:"not null" json:"joined_at"`
	CurrentStreak      int        `gorm:"not null;default:0" json:"current_streak"`
	TotalContributions int64      `gorm:"not null;default:0" json:"total_contributions"`
	LastCheckinAt      *time.Time `json:"last_checkin_at"`
	IsActiveToday      bool       `gorm:"not null;default:false" json:"is_active_today"`
	User               User       `gorm:"foreignKey:UserID" json:"user"`
}

// Invite states.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
	InviteStatusExpired  = "expired"
)

// PartyInvite grants a Farcaster fid entry into a private party.
type PartyInvite struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PartyID     uint      `gorm:"not null;index:idx_invite_party_fid" json:"party_id"`
	InvitedFID  int64     `gorm:"column:invited_fid;not null;index:idx_invite_party_fid" json:"invited_fid"`
	InvitedByID uint      `gorm:"not null" json:"invited_by_id"`
	Status      string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
