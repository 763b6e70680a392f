package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
)

func boolPtr(b bool) *bool { return &b }

func memberRole(t *testing.T, f *fixture, partyID, userID uint) string {
	t.Helper()
	var m models.PartyMember
	require.NoError(t, f.db.Where("party_id = ? AND user_id = ?", partyID, userID).First(&m).Error)
	return m.Role
}

func TestPartyCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1, "a")

	view, err := f.parties.Create(ctx, u.ID, CreatePartyInput{Name: "  <i>Night</i> Owls  ", Description: "we dance late"})
	require.NoError(t, err)
	assert.Equal(t, "Night Owls", view.Name)
	assert.Equal(t, "🎉", view.AvatarEmoji)
	assert.Equal(t, "intimate", view.PoolType)
	assert.True(t, view.IsPublic)
	assert.Len(t, view.JoinCode, 6)
	assert.Equal(t, 1, view.MemberCount)
	assert.Equal(t, 5, view.Capacity)
	require.Len(t, view.Members, 1)
	assert.Equal(t, models.RoleLeader, view.Members[0].Role)
	assert.Equal(t, "2026-03-04", view.LastRolloverDay)
	assert.InDelta(t, 1.05, view.CurrentMultiplier, 1e-9)

	_, err = f.parties.Create(ctx, u.ID, CreatePartyInput{Name: "Second"})
	assert.ErrorIs(t, err, ErrAlreadyInParty)
	_, err = f.parties.Create(ctx, f.user(t, 2, "b").ID, CreatePartyInput{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.parties.Create(ctx, f.user(t, 3, "c").ID, CreatePartyInput{Name: "x", PoolType: "mega"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPartyJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.user(t, 1, "lead")
	view, err := f.parties.Create(ctx, leader.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)

	b := f.user(t, 2, "b")
	joined, err := f.parties.Join(ctx, b.ID, 2, strconv.FormatUint(uint64(view.ID), 10))
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	assert.ErrorIs(t, err, ErrAlreadyInParty)

	c := f.user(t, 3, "c")
	_, err = f.parties.Join(ctx, c.ID, 3, "NOPE00")
	assert.ErrorIs(t, err, ErrPartyNotFound)
	_, err = f.parties.Join(ctx, c.ID, 3, "lowercase-"+view.JoinCode)
	assert.ErrorIs(t, err, ErrPartyNotFound)

	// join codes are case-insensitive
	_, err = f.parties.Join(ctx, c.ID, 3, strings.ToLower(view.JoinCode))
	require.NoError(t, err)
}

func TestPartyJoin_Full(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.user(t, 1, "lead")
	view, err := f.parties.Create(ctx, leader.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	for fid := int64(2); fid <= 5; fid++ {
		u := f.user(t, fid, "m")
		_, err := f.parties.Join(ctx, u.ID, fid, view.JoinCode)
		require.NoError(t, err)
	}
	late := f.user(t, 6, "late")
	_, err = f.parties.Join(ctx, late.ID, 6, view.JoinCode)
	assert.ErrorIs(t, err, ErrPartyFull)
}

func TestPartyJoin_PrivateNeedsInviteOrCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.user(t, 1, "lead")
	view, err := f.parties.Create(ctx, leader.ID, CreatePartyInput{Name: "Secret", IsPublic: boolPtr(false)})
	require.NoError(t, err)
	id := strconv.FormatUint(uint64(view.ID), 10)

	b := f.user(t, 2, "b")
	_, err = f.parties.Join(ctx, b.ID, 2, id)
	assert.ErrorIs(t, err, ErrInviteRequired)

	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)

	_, err = f.parties.Invite(ctx, b.ID, view.ID, 3)
	assert.ErrorIs(t, err, ErrForbidden)

	invite, err := f.parties.Invite(ctx, leader.ID, view.ID, 3)
	require.NoError(t, err)
	again, err := f.parties.Invite(ctx, leader.ID, view.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, invite.ID, again.ID)

	c := f.user(t, 3, "c")
	_, err = f.parties.Join(ctx, c.ID, 3, id)
	require.NoError(t, err)
	var got models.PartyInvite
	require.NoError(t, f.db.First(&got, invite.ID).Error)
	assert.Equal(t, models.InviteStatusAccepted, got.Status)
}

func TestPartyLeave_LeaderHandOffAndDisband(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	c := f.user(t, 3, "c")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, c.ID, 3, view.JoinCode)
	require.NoError(t, err)
	require.NoError(t, f.parties.SetRole(ctx, a.ID, view.ID, c.ID, models.RoleCoLeader))

	res, err := f.parties.Leave(ctx, a.ID, view.ID)
	require.NoError(t, err)
	assert.False(t, res.Disbanded)
	require.NotNil(t, res.NewLeaderID)
	assert.Equal(t, c.ID, *res.NewLeaderID)
	assert.Equal(t, models.RoleLeader, memberRole(t, f, view.ID, c.ID))

	_, err = f.parties.Leave(ctx, a.ID, view.ID)
	assert.ErrorIs(t, err, ErrNotInParty)

	res, err = f.parties.Leave(ctx, c.ID, view.ID)
	require.NoError(t, err)
	require.NotNil(t, res.NewLeaderID)
	assert.Equal(t, b.ID, *res.NewLeaderID)

	res, err = f.parties.Leave(ctx, b.ID, view.ID)
	require.NoError(t, err)
	assert.True(t, res.Disbanded)

	var party models.Party
	require.NoError(t, f.db.First(&party, view.ID).Error)
	assert.Equal(t, models.PartyStatusDisbanded, party.Status)

	// everyone is free to start over
	_, err = f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Again"})
	require.NoError(t, err)
}

func TestPartyLeave_EarlyLeaveSlashesLockedStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	stake, err := f.acct.Stake(ctx, b.ID, view.ID, 200)
	require.NoError(t, err)

	res, err := f.parties.Leave(ctx, b.ID, view.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Slash)
	assert.Equal(t, int64(100), res.Slash.Amount)

	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stake.ID).Error)
	assert.Equal(t, models.StakeUnlocking, got.Status)
	assert.Equal(t, int64(100), got.Amount)
	require.NotNil(t, got.UnlocksAt)
	assert.Equal(t, int64(100), treasuryOf(t, f, view.ID).RewardsPool)
}

func TestPartyKickAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	c := f.user(t, 3, "c")
	d := f.user(t, 4, "d")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	for _, u := range []*models.User{b, c, d} {
		_, err := f.parties.Join(ctx, u.ID, u.FarcasterFID, view.JoinCode)
		require.NoError(t, err)
	}
	require.NoError(t, f.parties.SetRole(ctx, a.ID, view.ID, b.ID, models.RoleCoLeader))
	require.NoError(t, f.parties.SetRole(ctx, a.ID, view.ID, c.ID, models.RoleCoLeader))

	assert.ErrorIs(t, f.parties.Kick(ctx, d.ID, view.ID, c.ID), ErrForbidden)
	assert.ErrorIs(t, f.parties.Kick(ctx, b.ID, view.ID, c.ID), ErrForbidden)
	assert.ErrorIs(t, f.parties.Kick(ctx, b.ID, view.ID, a.ID), ErrForbidden)
	assert.ErrorIs(t, f.parties.SetRole(ctx, b.ID, view.ID, d.ID, models.RoleCoLeader), ErrForbidden)
	assert.ErrorIs(t, f.parties.SetRole(ctx, a.ID, view.ID, d.ID, "boss"), ErrInvalidInput)

	stake, err := f.acct.Stake(ctx, d.ID, view.ID, 100)
	require.NoError(t, err)
	require.NoError(t, f.parties.Kick(ctx, b.ID, view.ID, d.ID))
	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stake.ID).Error)
	assert.Equal(t, models.StakeUnlocking, got.Status)
	assert.Equal(t, int64(100), got.Amount)

	require.NoError(t, f.parties.SetRole(ctx, a.ID, view.ID, c.ID, models.RoleLeader))
	assert.Equal(t, models.RoleLeader, memberRole(t, f, view.ID, c.ID))
	assert.Equal(t, models.RoleCoLeader, memberRole(t, f, view.ID, a.ID))
}

func TestPartyUpdateAndDisband(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	_, err = f.acct.Stake(ctx, b.ID, view.ID, 300)
	require.NoError(t, err)

	name := "Renamed"
	_, err = f.parties.Update(ctx, b.ID, view.ID, UpdatePartyInput{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
	updated, err := f.parties.Update(ctx, a.ID, view.ID, UpdatePartyInput{Name: &name, IsPublic: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.IsPublic)

	assert.ErrorIs(t, f.parties.Disband(ctx, b.ID, view.ID), ErrForbidden)
	require.NoError(t, f.parties.Disband(ctx, a.ID, view.ID))

	assert.Equal(t, int64(1000), f.reload(t, b.ID).DanzBalance)
	var members int64
	require.NoError(t, f.db.Model(&models.PartyMember{}).Where("party_id = ?", view.ID).Count(&members).Error)
	assert.Zero(t, members)
	_, err = f.parties.Mine(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotInParty)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	assert.ErrorIs(t, err, ErrPartyNotFound)
}

func TestPartyLeaderboardAndDiscover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	c := f.user(t, 3, "c")
	pa, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Alpha"})
	require.NoError(t, err)
	pb, err := f.parties.Create(ctx, b.ID, CreatePartyInput{Name: "Bravo"})
	require.NoError(t, err)
	_, err = f.parties.Create(ctx, c.ID, CreatePartyInput{Name: "Hidden", IsPublic: boolPtr(false)})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Party{}).Where("id = ?", pb.ID).Update("weekly_xp", 500).Error)

	board, err := f.parties.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, pb.ID, board[0].PartyID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 1, board[0].MemberCount)

	// served from cache until a mutation invalidates it
	require.NoError(t, f.db.Model(&models.Party{}).Where("id = ?", pa.ID).Update("weekly_xp", 900).Error)
	cached, err := f.parties.Leaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, pb.ID, cached[0].PartyID)

	_, err = f.parties.Join(ctx, f.user(t, 4, "d").ID, 4, pa.JoinCode)
	require.NoError(t, err)
	fresh, err := f.parties.Leaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, pa.ID, fresh[0].PartyID)
	assert.Equal(t, 2, fresh[0].MemberCount)

	found, err := f.parties.Discover(ctx, 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, pa.ID, found[0].ID)
}

func TestPartyRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	_, err = f.acct.Stake(ctx, a.ID, view.ID, 500)
	require.NoError(t, err)
	stakeB, err := f.acct.Stake(ctx, b.ID, view.ID, 200)
	require.NoError(t, err)

	// day 0: both dance
	f.checkin(t, a, true)
	f.checkin(t, b, true)

	f.nextDay()
	report, err := f.parties.Rollover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", report.Day)
	assert.Equal(t, 1, report.Settled)
	// 110 * 0.25 = 27.5 split two ways
	assert.Equal(t, int64(26), report.BonusXP)
	assert.Equal(t, int64(68), f.reload(t, a.ID).XP)

	var party models.Party
	require.NoError(t, f.db.First(&party, view.ID).Error)
	assert.Equal(t, 1, party.PartyStreak)
	assert.Equal(t, int64(0), party.DailyXP)
	assert.Equal(t, int64(136), party.TotalXP)
	assert.Equal(t, int64(26), party.BonusXPDistributed)

	again, err := f.parties.Rollover(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, again.Settled)
	assert.Equal(t, int64(68), f.reload(t, a.ID).XP)

	// day 1: only a dances
	f.checkin(t, a, true)
	f.nextDay()
	report, err = f.parties.Rollover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 2, report.Slashed)
	assert.Equal(t, int64(9), report.BonusXP)

	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stakeB.ID).Error)
	// streak_break 10% of 200, then party_streak_break 15% of 180
	assert.Equal(t, int64(153), got.Amount)
	assert.Equal(t, int64(47), got.TotalSlashed)

	// the slashed DANZ went to the only active member
	assert.Equal(t, int64(547), f.reload(t, a.ID).DanzBalance)
	assert.Equal(t, int64(0), treasuryOf(t, f, view.ID).RewardsPool)

	require.NoError(t, f.db.First(&party, view.ID).Error)
	assert.Equal(t, 0, party.PartyStreak)
	assert.Equal(t, 1, party.LongestPartyStreak)
	assert.Equal(t, "2026-03-06", party.LastRolloverDay)

	var active int64
	require.NoError(t, f.db.Model(&models.PartyMember{}).Where("party_id = ? AND is_active_today = ?", view.ID, true).Count(&active).Error)
	assert.Zero(t, active)

	_, err = f.parties.Rollover(ctx, "not-a-day")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPartyLeave_LastMemberSettlesTreasury(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	stakeA, err := f.acct.Stake(ctx, a.ID, view.ID, 200)
	require.NoError(t, err)
	_, err = f.acct.Stake(ctx, b.ID, view.ID, 200)
	require.NoError(t, err)

	// b leaves early and feeds the rewards pool
	res, err := f.parties.Leave(ctx, b.ID, view.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Slash)
	assert.Equal(t, int64(100), treasuryOf(t, f, view.ID).RewardsPool)

	res, err = f.parties.Leave(ctx, a.ID, view.ID)
	require.NoError(t, err)
	assert.True(t, res.Disbanded)
	assert.Nil(t, res.Slash)

	tr := treasuryOf(t, f, view.ID)
	assert.Zero(t, tr.RewardsPool)
	// only the two unlocking stakes remain in the treasury
	assert.Equal(t, int64(300), tr.TotalBalance)
	assert.Equal(t, int64(900), f.reload(t, a.ID).DanzBalance)

	var got models.MemberStake
	require.NoError(t, f.db.First(&got, stakeA.ID).Error)
	assert.Equal(t, models.StakeUnlocking, got.Status)
	assert.Equal(t, int64(200), got.Amount)

	f.nextDay()
	_, paid, err := f.acct.Withdraw(ctx, a.ID, stakeA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), paid)
	assert.Equal(t, int64(1100), f.reload(t, a.ID).DanzBalance)
}

func TestPartyLeave_SoloLeaderKeepsStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Solo"})
	require.NoError(t, err)
	_, err = f.acct.Stake(ctx, a.ID, view.ID, 200)
	require.NoError(t, err)

	res, err := f.parties.Leave(ctx, a.ID, view.ID)
	require.NoError(t, err)
	assert.True(t, res.Disbanded)
	assert.Nil(t, res.Slash)

	tr := treasuryOf(t, f, view.ID)
	assert.Zero(t, tr.RewardsPool)
	assert.Equal(t, int64(200), tr.StakingPool)
	var events int64
	require.NoError(t, f.db.Model(&models.SlashEvent{}).Where("party_id = ?", view.ID).Count(&events).Error)
	assert.Zero(t, events)
}

func TestPartyRollover_EarlyCheckinCountsForItsOwnDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "a")
	b := f.user(t, 2, "b")
	view, err := f.parties.Create(ctx, a.ID, CreatePartyInput{Name: "Crew"})
	require.NoError(t, err)
	_, err = f.parties.Join(ctx, b.ID, 2, view.JoinCode)
	require.NoError(t, err)
	f.checkin(t, a, true)
	f.checkin(t, b, true)

	// 00:01 on 2026-03-05: both dance before the rollover tick
	f.clock.Advance(12*time.Hour + time.Minute)
	ra := f.checkin(t, a, true)
	rb := f.checkin(t, b, true)
	early := int64(ra.XPEarned + rb.XPEarned)

	report, err := f.parties.Rollover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", report.Day)
	// the settled day's base is still the 110 XP earned on 03-04
	assert.Equal(t, int64(26), report.BonusXP)

	var party models.Party
	require.NoError(t, f.db.First(&party, view.ID).Error)
	assert.Equal(t, early, party.DailyXP)

	f.nextDay()
	report, err = f.parties.Rollover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Greater(t, report.BonusXP, int64(0))
	require.NoError(t, f.db.First(&party, view.ID).Error)
	assert.Zero(t, party.DailyXP)
	assert.Equal(t, 2, party.PartyStreak)
}

func TestCreditXP_LevelFollowsTotal(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 1, "a")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
				return creditXP(tx, u.ID, 30)
			}))
		}()
	}
	wg.Wait()

	got := f.reload(t, u.ID)
	assert.Equal(t, int64(300), got.XP)
	assert.Equal(t, rules.LevelForXP(300), got.Level)
	assert.Greater(t, got.Level, 1)

	// unknown users are skipped
	assert.NoError(t, creditXP(f.db, 9999, 10))
}
