package models

import "time"

// Stake states. A stake moves locked -> active -> unlocking -> withdrawable -> withdrawn.
const (
	StakeLocked       = "locked"
	StakeActive       = "active"
	StakeUnlocking    = "unlocking"
	StakeWithdrawable = "withdrawable"
	StakeWithdrawn    = "withdrawn"
)

// MemberStake is the DANZ a member has put at risk in one party.
type MemberStake struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PartyID      uint       `gorm:"not null;uniqueIndex:idx_stake_party_user" json:"party_id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_stake_party_user;index" json:"user_id"`
	Amount       int64      `gorm:"not null;default:0" json:"amount"`
	Status       string     `gorm:"size:16;not null;index" json:"status"`
	LockedUntil  time.Time  `gorm:"not null" json:"locked_until"`
	UnlocksAt    *time.Time `json:"unlocks_at"`
	TotalSlashed int64      `gorm:"not null;default:0" json:"total_slashed"`
	TotalEarned  int64      `gorm:"not null;default:0" json:"total_earned"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PartyTreasury holds a party's pooled DANZ. total_balance = staking_pool + rewards_pool.
type PartyTreasury struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	PartyID            uint       `gorm:"uniqueIndex;not null" json:"party_id"`
	TotalBalance       int64      `gorm:"not null;default:0" json:"total_balance"`
	StakingPool        int64      `gorm:"not null;default:0" json:"staking_pool"`
	RewardsPool        int64      `gorm:"not null;default:0" json:"rewards_pool"`
	LastDistributionAt *time.Time `json:"last_distribution_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SlashEvent is an append-only record of a penalty decision, including protected ones.
type SlashEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PartyID         uint      `gorm:"index;not null" json:"party_id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	StakeID         uint      `gorm:"index;not null" json:"stake_id"`
	Reason          string    `gorm:"size:32;not null" json:"reason"`
	Amount          int64     `gorm:"not null;default:0" json:"amount"`
	RedistributedTo string    `gorm:"size:16;not null;default:'treasury'" json:"redistributed_to"`
	WasProtected    bool      `gorm:"not null;default:false" json:"was_protected"`
	ProtectionUsed  string    `gorm:"size:64" json:"protection_used,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
