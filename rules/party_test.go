package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danz-app/danz/models"
)

func TestCalculatePartyMultiplier(t *testing.T) {
	assert.InDelta(t, 1.05, CalculatePartyMultiplier(0, 0, 0, 0.05), 1e-9)
	assert.InDelta(t, 1.40, CalculatePartyMultiplier(10, 10, 15, 0.10), 1e-9)
	assert.InDelta(t, 1.0+0.05+0.10+0.03, CalculatePartyMultiplier(1, 2, 3, 0.05), 1e-9)
}

func TestCalculatePartyMultiplier_StreakBonusCaps(t *testing.T) {
	a := CalculatePartyMultiplier(5, 5, 10, 0.3)
	b := CalculatePartyMultiplier(5, 5, 365, 0.3)
	assert.InDelta(t, a, b, 1e-9)
}

func TestCalculatePartyXPDistribution_Even(t *testing.T) {
	got := CalculatePartyXPDistribution(100, 1.20, []uint{1, 2})
	assert.Equal(t, []MemberBonus{{MemberID: 1, BonusXP: 10}, {MemberID: 2, BonusXP: 10}}, got)
	assert.Equal(t, 0, DistributionRemainder(100, 1.20, 2))
}

func TestCalculatePartyXPDistribution_RemainderDropped(t *testing.T) {
	// 105 * 0.2 = 21 split two ways
	got := CalculatePartyXPDistribution(105, 1.20, []uint{7, 8})
	assert.Len(t, got, 2)
	for _, b := range got {
		assert.Equal(t, 10, b.BonusXP)
	}
	assert.Equal(t, 1, DistributionRemainder(105, 1.20, 2))
}

func TestCalculatePartyXPDistribution_NoMembers(t *testing.T) {
	assert.Empty(t, CalculatePartyXPDistribution(100, 1.5, nil))
}

func TestTierForXP(t *testing.T) {
	assert.Equal(t, TierStarter, TierForXP(0).Tier)
	assert.Equal(t, TierStarter, TierForXP(4999).Tier)
	assert.Equal(t, TierRising, TierForXP(5000).Tier)
	assert.Equal(t, TierHot, TierForXP(25000).Tier)
	assert.Equal(t, TierFire, TierForXP(499999).Tier)
	assert.Equal(t, TierLegendary, TierForXP(10_000_000).Tier)
}

func TestPartyCapacity(t *testing.T) {
	intimate, _ := PoolByType("intimate")
	large, _ := PoolByType("large")
	assert.Equal(t, 5, PartyCapacity(intimate, TierForXP(0), 0))
	assert.Equal(t, 10, PartyCapacity(intimate, TierForXP(1_000_000), 0))
	assert.Equal(t, 35, PartyCapacity(large, TierForXP(1_000_000), 5))
	_, ok := PoolByType("mega")
	assert.False(t, ok)
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, PermissionsFor(models.RoleLeader).CanDisband)
	co := PermissionsFor(models.RoleCoLeader)
	assert.True(t, co.CanInvite)
	assert.True(t, co.CanKick)
	assert.False(t, co.CanEditParty)
	assert.False(t, co.CanPromote)
	assert.Equal(t, Permissions{}, PermissionsFor(models.RoleMember))
	assert.Equal(t, Permissions{}, PermissionsFor("stranger"))
}
