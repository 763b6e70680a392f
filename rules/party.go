package rules

import (
	"math"

	"github.com/danz-app/danz/models"
)

// PartyTier is a party's rank bracket by cumulative XP.
type PartyTier string

const (
	TierStarter   PartyTier = "starter"
	TierRising    PartyTier = "rising"
	TierHot       PartyTier = "hot"
	TierFire      PartyTier = "fire"
	TierLegendary PartyTier = "legendary"
)

// TierConfig describes one tier.
type TierConfig struct {
	Tier            PartyTier `json:"tier"`
	Label           string    `json:"label"`
	Emoji           string    `json:"emoji"`
	MinXP           int64     `json:"min_xp"`
	MaxMembers      int       `json:"max_members"`
	MultiplierBonus float64   `json:"multiplier_bonus"`
}

// PartyTiers is ordered by ascending MinXP.
var PartyTiers = []TierConfig{
	{Tier: TierStarter, Label: "Starter", Emoji: "🌱", MinXP: 0, MaxMembers: 5, MultiplierBonus: 0.05},
	{Tier: TierRising, Label: "Rising", Emoji: "⭐", MinXP: 5000, MaxMembers: 10, MultiplierBonus: 0.10},
	{Tier: TierHot, Label: "Hot", Emoji: "🔥", MinXP: 25000, MaxMembers: 15, MultiplierBonus: 0.15},
	{Tier: TierFire, Label: "Fire", Emoji: "💥", MinXP: 100000, MaxMembers: 20, MultiplierBonus: 0.20},
	{Tier: TierLegendary, Label: "Legendary", Emoji: "👑", MinXP: 500000, MaxMembers: 30, MultiplierBonus: 0.30},
}

// TierForXP returns the highest tier whose floor is at or below xp.
func TierForXP(xp int64) TierConfig {
	tier := PartyTiers[0]
	for _, t := range PartyTiers {
		if xp >= t.MinXP {
			tier = t
		}
	}
	return tier
}

// PoolType selects the accountability rules a party runs under.
type PoolType string

const (
	PoolIntimate PoolType = "intimate"
	PoolLarge    PoolType = "large"
	PoolCreator  PoolType = "creator"
)

// PoolConfig describes one pool type.
type PoolConfig struct {
	Type            PoolType `json:"type"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Emoji           string   `json:"emoji"`
	MinMembers      int      `json:"min_members"`
	MaxMembers      int      `json:"max_members"`
	MinStake        int64    `json:"min_stake"`
	HasSlashing     bool     `json:"has_slashing"`
	HasCreatorToken bool     `json:"has_creator_token"`
	LockPeriodDays  int      `json:"lock_period_days"`
}

var PartyPools = map[PoolType]PoolConfig{
	PoolIntimate: {
		Type: PoolIntimate, Name: "Intimate Party", Emoji: "💎",
		Description: "Small, tight-knit crew with strict accountability.",
		MinMembers:  2, MaxMembers: 10, MinStake: 100, HasSlashing: true, LockPeriodDays: 7,
	},
	PoolLarge: {
		Type: PoolLarge, Name: "Large Party", Emoji: "🎉",
		Description: "Relaxed community with lighter penalties.",
		MinMembers:  5, MaxMembers: 100, MinStake: 10, HasSlashing: true, LockPeriodDays: 3,
	},
	PoolCreator: {
		Type: PoolCreator, Name: "Creator Party", Emoji: "👑",
		Description: "Stake behind a creator and earn rewards for showing up.",
		MinMembers:  3, MaxMembers: 50, MinStake: 50, HasSlashing: true, HasCreatorToken: true, LockPeriodDays: 14,
	},
}

// PoolByType looks up a pool; ok is false for unknown names.
func PoolByType(name string) (PoolConfig, bool) {
	p, ok := PartyPools[PoolType(name)]
	return p, ok
}

// PartyCapacity is the member limit for a party: the smaller of the pool and tier limits plus purchased slots.
func PartyCapacity(pool PoolConfig, tier TierConfig, extraSlots int) int {
	limit := pool.MaxMembers
	if tier.MaxMembers < limit {
		limit = tier.MaxMembers
	}
	if extraSlots > 0 {
		limit += extraSlots
	}
	return limit
}

// Permissions is what a role may do inside its party.
type Permissions struct {
	CanInvite    bool `json:"can_invite"`
	CanKick      bool `json:"can_kick"`
	CanEditParty bool `json:"can_edit_party"`
	CanDisband   bool `json:"can_disband"`
	CanPromote   bool `json:"can_promote"`
}

var RolePermissions = map[string]Permissions{
	models.RoleLeader:   {CanInvite: true, CanKick: true, CanEditParty: true, CanDisband: true, CanPromote: true},
	models.RoleCoLeader: {CanInvite: true, CanKick: true},
	models.RoleMember:   {},
}

// PermissionsFor returns the permissions of role; unknown roles get none.
func PermissionsFor(role string) Permissions {
	return RolePermissions[role]
}

// Party multiplier constants.
const (
	MaxParticipationBonus  = 0.20
	PartyStreakBonusPerDay = 0.01
	MaxPartyStreakBonus    = 0.10
)

// CalculatePartyMultiplier returns 1 + tierBonus + participation*0.20 + min(partyStreak*0.01, 0.10).
func CalculatePartyMultiplier(activeMembers, totalMembers, partyStreak int, tierBonus float64) float64 {
	participation := 0.0
	if totalMembers > 0 {
		participation = float64(activeMembers) / float64(totalMembers)
	}
	streakBonus := math.Min(float64(partyStreak)*PartyStreakBonusPerDay, MaxPartyStreakBonus)
	if streakBonus < 0 {
		streakBonus = 0
	}
	return 1 + tierBonus + participation*MaxParticipationBonus + streakBonus
}

// MemberBonus is one member's share of a party bonus.
type MemberBonus struct {
	MemberID uint `json:"member_id"`
	BonusXP  int  `json:"bonus_xp"`
}

// partyBonusTotal is baseXP*(multiplier-1), rounded to micro-units so float noise
// like 19.999999999999996 counts as 20.
func partyBonusTotal(baseXP int, multiplier float64) float64 {
	total := float64(baseXP) * (multiplier - 1)
	total = math.Round(total*1e6) / 1e6
	if total < 0 {
		return 0
	}
	return total
}

// CalculatePartyXPDistribution gives every member the same floored share of the bonus.
// The integer remainder is not handed out.
func CalculatePartyXPDistribution(baseXP int, multiplier float64, memberIDs []uint) []MemberBonus {
	out := make([]MemberBonus, 0, len(memberIDs))
	if len(memberIDs) == 0 {
		return out
	}
	per := int(math.Floor(partyBonusTotal(baseXP, multiplier) / float64(len(memberIDs))))
	for _, id := range memberIDs {
		out = append(out, MemberBonus{MemberID: id, BonusXP: per})
	}
	return out
}

// DistributionRemainder is the whole XP lost to flooring when splitting among members.
func DistributionRemainder(baseXP int, multiplier float64, members int) int {
	total := int(math.Floor(partyBonusTotal(baseXP, multiplier)))
	if members <= 0 {
		return total
	}
	per := int(math.Floor(partyBonusTotal(baseXP, multiplier) / float64(members)))
	return total - per*members
}
