package rules

import "math"

// SlashReason is why a stake is penalised.
type SlashReason string

const (
	SlashMissedCheckin    SlashReason = "missed_checkin"
	SlashStreakBreak      SlashReason = "streak_break"
	SlashPartyStreakBreak SlashReason = "party_streak_break"
	SlashInactivity       SlashReason = "inactivity"
	SlashEarlyLeave       SlashReason = "early_leave"
)

// Valid reports whether r is a known reason.
func (r SlashReason) Valid() bool {
	switch r {
	case SlashMissedCheckin, SlashStreakBreak, SlashPartyStreakBreak, SlashInactivity, SlashEarlyLeave:
		return true
	}
	return false
}

// PoolSlashConfig holds the penalty rates (fractions of the stake) for one pool type.
type PoolSlashConfig struct {
	MissedCheckinPenalty    float64 `json:"missed_checkin_penalty"`
	StreakBreakPenalty      float64 `json:"streak_break_penalty"`
	PartyStreakBreakPenalty float64 `json:"party_streak_break_penalty"`
	InactivityThresholdDays int     `json:"inactivity_threshold_days"`
	InactivityPenalty       float64 `json:"inactivity_penalty"`
	EarlyLeavePenalty       float64 `json:"early_leave_penalty"`
	MinStakeRequired        int64   `json:"min_stake_required"`
	LockPeriodDays          int     `json:"lock_period_days"`
	CreatorTokenRewardRate  float64 `json:"creator_token_reward_rate,omitempty"`
}

// Rate returns the penalty fraction for reason, 0 for unknown reasons.
func (c PoolSlashConfig) Rate(reason SlashReason) float64 {
	switch reason {
	case SlashMissedCheckin:
		return c.MissedCheckinPenalty
	case SlashStreakBreak:
		return c.StreakBreakPenalty
	case SlashPartyStreakBreak:
		return c.PartyStreakBreakPenalty
	case SlashInactivity:
		return c.InactivityPenalty
	case SlashEarlyLeave:
		return c.EarlyLeavePenalty
	default:
		return 0
	}
}

// SlashConfig maps each pool type to its penalty table.
type SlashConfig map[PoolType]PoolSlashConfig

var DefaultSlashConfig = SlashConfig{
	PoolIntimate: {
		MissedCheckinPenalty:    0.05,
		StreakBreakPenalty:      0.10,
		PartyStreakBreakPenalty: 0.15,
		InactivityThresholdDays: 3,
		InactivityPenalty:       0.25,
		EarlyLeavePenalty:       0.50,
		MinStakeRequired:        100,
		LockPeriodDays:          7,
	},
	PoolLarge: {
		MissedCheckinPenalty:    0.01,
		StreakBreakPenalty:      0.02,
		PartyStreakBreakPenalty: 0,
		InactivityThresholdDays: 7,
		InactivityPenalty:       0.10,
		EarlyLeavePenalty:       0.20,
		MinStakeRequired:        10,
		LockPeriodDays:          3,
	},
	PoolCreator: {
		MissedCheckinPenalty:    0.03,
		StreakBreakPenalty:      0.05,
		PartyStreakBreakPenalty: 0.08,
		InactivityThresholdDays: 5,
		InactivityPenalty:       0.15,
		EarlyLeavePenalty:       0.30,
		MinStakeRequired:        50,
		LockPeriodDays:          14,
		CreatorTokenRewardRate:  0.01,
	},
}

// CalculateSlashAmount returns floor(staked * rate) for the pool and reason.
// Unknown pools or reasons and non-positive stakes yield 0.
func CalculateSlashAmount(staked int64, reason SlashReason, pool PoolType, cfg SlashConfig) int64 {
	if staked <= 0 {
		return 0
	}
	if cfg == nil {
		cfg = DefaultSlashConfig
	}
	pc, ok := cfg[pool]
	if !ok {
		return 0
	}
	rate := pc.Rate(reason)
	if rate <= 0 {
		return 0
	}
	// +1e-9 keeps 1000*0.29 from flooring to 289
	amount := int64(math.Floor(float64(staked)*rate + 1e-9))
	if amount > staked {
		return staked
	}
	return amount
}
