package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
)

func stakedParty(t *testing.T, f *fixture, amount int64) (*models.User, *PartyView, *models.MemberStake) {
	t.Helper()
	ctx := context.Background()
	u := f.user(t, 1, "leader")
	view, err := f.parties.Create(ctx, u.ID, CreatePartyInput{Name: "Stakers", PoolType: "intimate"})
	require.NoError(t, err)
	stake, err := f.acct.Stake(ctx, u.ID, view.ID, amount)
	require.NoError(t, err)
	return u, view, stake
}

func treasuryOf(t *testing.T, f *fixture, partyID uint) models.PartyTreasury {
	t.Helper()
	var tr models.PartyTreasury
	require.NoError(t, f.db.Where("party_id = ?", partyID).First(&tr).Error)
	return tr
}

func TestStake_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1, "a")
	outsider := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, u.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)

	_, err = f.acct.Stake(ctx, u.ID, view.ID, 50)
	assert.ErrorIs(t, err, ErrBelowMinStake)
	_, err = f.acct.Stake(ctx, u.ID, view.ID, 5000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = f.acct.Stake(ctx, outsider.ID, view.ID, 200)
	assert.ErrorIs(t, err, ErrNotInParty)
	_, err = f.acct.Stake(ctx, u.ID, view.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, int64(1000), f.reload(t, u.ID).DanzBalance)
}

func TestStake_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, view, stake := stakedParty(t, f, 200)

	assert.Equal(t, models.StakeLocked, stake.Status)
	assert.WithinDuration(t, f.clock.Now().AddDate(0, 0, 7), stake.LockedUntil, time.Second)
	assert.Equal(t, int64(800), f.reload(t, u.ID).DanzBalance)
	tr := treasuryOf(t, f, view.ID)
	assert.Equal(t, int64(200), tr.StakingPool)
	assert.Equal(t, int64(200), tr.TotalBalance)

	// top-ups below the minimum are fine once a stake exists
	stake, err := f.acct.Stake(ctx, u.ID, view.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(210), stake.Amount)

	_, err = f.acct.RequestUnstake(ctx, u.ID, stake.ID)
	assert.ErrorIs(t, err, ErrStakeLocked)

	f.clock.Advance(7*24*time.Hour + time.Minute)
	stake, err = f.acct.RequestUnstake(ctx, u.ID, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StakeUnlocking, stake.Status)

	_, _, err = f.acct.Withdraw(ctx, u.ID, stake.ID)
	assert.ErrorIs(t, err, ErrStakeState)
	_, err = f.acct.Stake(ctx, u.ID, view.ID, 100)
	assert.ErrorIs(t, err, ErrStakeState)

	f.clock.Advance(24 * time.Hour)
	stake, paid, err := f.acct.Withdraw(ctx, u.ID, stake.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(210), paid)
	assert.Equal(t, models.StakeWithdrawn, stake.Status)
	assert.Equal(t, int64(1000), f.reload(t, u.ID).DanzBalance)
	assert.Equal(t, int64(0), treasuryOf(t, f, view.ID).StakingPool)

	other := f.user(t, 2, "b")
	_, _, err = f.acct.Withdraw(ctx, other.ID, stake.ID)
	assert.ErrorIs(t, err, ErrStakeNotFound)
}

func TestAdvance_MovesDueStakes(t *testing.T) {
	f := newFixture(t)
	_, _, stake := stakedParty(t, f, 200)

	require.NoError(t, f.acct.Advance(context.Background(), f.clock.Now().AddDate(0, 0, 8)))
	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stake.ID).Error)
	assert.Equal(t, models.StakeActive, got.Status)
}

func TestSlash_MovesAmountToRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, view, stake := stakedParty(t, f, 500)

	out, err := f.acct.Slash(ctx, stake.ID, rules.SlashMissedCheckin, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, out.Protected)
	assert.Equal(t, int64(25), out.Amount)
	require.NotNil(t, out.Event)
	assert.Equal(t, "treasury", out.Event.RedistributedTo)
	assert.Equal(t, u.ID, out.Event.UserID)

	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stake.ID).Error)
	assert.Equal(t, int64(475), got.Amount)
	assert.Equal(t, int64(25), got.TotalSlashed)

	tr := treasuryOf(t, f, view.ID)
	assert.Equal(t, int64(475), tr.StakingPool)
	assert.Equal(t, int64(25), tr.RewardsPool)
	assert.Equal(t, int64(500), tr.TotalBalance)

	_, err = f.acct.Slash(ctx, stake.ID, "nap_time", f.clock.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSlash_ProtectionChargeConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _, stake := stakedParty(t, f, 500)
	_, err := f.shop.Purchase(ctx, u.ID, "danz_dodge_single", 1)
	require.NoError(t, err)

	out, err := f.acct.Slash(ctx, stake.ID, rules.SlashStreakBreak, f.clock.Now())
	require.NoError(t, err)
	assert.True(t, out.Protected)
	assert.Zero(t, out.Amount)
	require.NotNil(t, out.Event)
	assert.True(t, out.Event.WasProtected)
	assert.Equal(t, "danz_dodge_single", out.Event.ProtectionUsed)

	var inv models.InventoryItem
	require.NoError(t, f.db.Where("user_id = ? AND item_id = ?", u.ID, "danz_dodge_single").First(&inv).Error)
	assert.Equal(t, 0, inv.UsesRemaining)

	out, err = f.acct.Slash(ctx, stake.ID, rules.SlashStreakBreak, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, out.Protected)
	assert.Equal(t, int64(50), out.Amount)

	var events int64
	require.NoError(t, f.db.Model(&models.SlashEvent{}).Where("stake_id = ?", stake.ID).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestSlash_WeekendPassOnlyOnWeekends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _, stake := stakedParty(t, f, 500)

	// Saturday 2026-03-07
	f.clock.Advance(3 * 24 * time.Hour)
	inv, err := f.shop.Purchase(ctx, u.ID, "weekend_pass", 1)
	require.NoError(t, err)
	_, err = f.shop.Activate(ctx, u.ID, inv.ID)
	require.NoError(t, err)

	out, err := f.acct.Slash(ctx, stake.ID, rules.SlashMissedCheckin, f.clock.Now())
	require.NoError(t, err)
	assert.True(t, out.Protected)
	assert.Equal(t, "weekend_pass", out.Event.ProtectionUsed)

	// Monday: pass expired and not a weekend
	out, err = f.acct.Slash(ctx, stake.ID, rules.SlashMissedCheckin, f.clock.Now().Add(49*time.Hour))
	require.NoError(t, err)
	assert.False(t, out.Protected)
	assert.Equal(t, int64(25), out.Amount)
}

func TestSlash_ImmunityShield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _, stake := stakedParty(t, f, 500)
	inv, err := f.shop.Purchase(ctx, u.ID, "immunity_shield", 1)
	require.NoError(t, err)
	_, err = f.shop.Activate(ctx, u.ID, inv.ID)
	require.NoError(t, err)

	out, err := f.acct.Slash(ctx, stake.ID, rules.SlashInactivity, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, out.Protected)

	out, err = f.acct.Slash(ctx, stake.ID, rules.SlashInactivity, f.clock.Now().Add(25*time.Hour))
	require.NoError(t, err)
	assert.False(t, out.Protected)
	assert.Equal(t, int64(125), out.Amount)
}

func TestDistributeRewards_FloorSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, view, _ := stakedParty(t, f, 500)
	b := f.user(t, 2, "b")
	c := f.user(t, 3, "c")
	require.NoError(t, f.db.Model(&models.PartyTreasury{}).Where("party_id = ?", view.ID).
		Updates(map[string]interface{}{"rewards_pool": 50, "total_balance": 550}).Error)

	per, err := f.acct.DistributeRewards(ctx, view.ID, []uint{u.ID, b.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(16), per)
	assert.Equal(t, int64(516), f.reload(t, u.ID).DanzBalance)
	assert.Equal(t, int64(1016), f.reload(t, b.ID).DanzBalance)

	tr := treasuryOf(t, f, view.ID)
	assert.Equal(t, int64(2), tr.RewardsPool)
	assert.Equal(t, int64(502), tr.TotalBalance)
	require.NotNil(t, tr.LastDistributionAt)

	var stake models.MemberStake
	require.NoError(t, f.db.Where("user_id = ?", u.ID).First(&stake).Error)
	assert.Equal(t, int64(16), stake.TotalEarned)
}

func TestTreasury_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, view, stake := stakedParty(t, f, 500)
	_, err := f.acct.Slash(ctx, stake.ID, rules.SlashMissedCheckin, f.clock.Now())
	require.NoError(t, err)

	tv, err := f.acct.Treasury(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), tv.Treasury.RewardsPool)
	assert.Len(t, tv.RecentSlashes, 1)

	_, err = f.acct.Treasury(ctx, 999)
	assert.ErrorIs(t, err, ErrPartyNotFound)
}
