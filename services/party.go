package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

const (
	maxPartyName        = 50
	maxPartyDescription = 200
	defaultPartyEmoji   = "🎉"
	inviteTTL           = 7 * 24 * time.Hour
	leaderboardTTL      = 60 * time.Second
	maxLeaderboard      = 50
)

// CreatePartyInput is the payload for PartyService.Create.
type CreatePartyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	IsPublic    *bool  `json:"is_public"`
	PoolType    string `json:"pool_type"`
}

// UpdatePartyInput carries the editable fields; nil leaves a field unchanged.
type UpdatePartyInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Emoji       *string `json:"emoji"`
	IsPublic    *bool   `json:"is_public"`
}

// PartyView is a party with its derived tier, capacity and live multiplier.
type PartyView struct {
	models.Party
	Tier              rules.TierConfig `json:"tier"`
	Pool              rules.PoolConfig `json:"pool"`
	Capacity          int              `json:"capacity"`
	MemberCount       int              `json:"member_count"`
	ActiveMembers     int              `json:"active_members"`
	CurrentMultiplier float64          `json:"current_multiplier"`
}

// LeaderboardEntry is one ranked party.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	PartyID     uint            `json:"party_id"`
	Name        string          `json:"name"`
	AvatarEmoji string          `json:"avatar_emoji"`
	Tier        rules.PartyTier `json:"tier"`
	WeeklyXP    int64           `json:"weekly_xp"`
	TotalXP     int64           `json:"total_xp"`
	PartyStreak int             `json:"party_streak"`
	MemberCount int             `json:"member_count"`
}

// LeaveResult describes what happened when a member left.
type LeaveResult struct {
	Disbanded   bool          `json:"disbanded"`
	NewLeaderID *uint         `json:"new_leader_id,omitempty"`
	Slash       *SlashOutcome `json:"slash,omitempty"`
}

// RolloverReport summarises one daily settlement run.
type RolloverReport struct {
	Day       string `json:"day"`
	Parties   int    `json:"parties"`
	Settled   int    `json:"settled"`
	BonusXP   int64  `json:"bonus_xp"`
	Slashed   int    `json:"slashed"`
	Protected int    `json:"protected"`
	Failed    int    `json:"failed"`
}

// PartyService owns party membership, roles and the daily rollover.
type PartyService struct {
	db   *gorm.DB
	acct *AccountabilityService
	opts Options
}

// NewPartyService creates a party service; acct handles stakes touched by membership changes.
func NewPartyService(db *gorm.DB, acct *AccountabilityService, opts ...Option) *PartyService {
	return &PartyService{db: db, acct: acct, opts: newOptions(opts)}
}

// Create makes a new party led by userID.
func (s *PartyService) Create(ctx context.Context, userID uint, in CreatePartyInput) (*PartyView, error) {
	name := utils.SanitizeText(in.Name, maxPartyName)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	poolType := in.PoolType
	if poolType == "" {
		poolType = string(rules.PoolIntimate)
	}
	if _, ok := rules.PoolByType(poolType); !ok {
		return nil, fmt.Errorf("%w: unknown pool type %q", ErrInvalidInput, poolType)
	}
	emoji := strings.TrimSpace(in.Emoji)
	if emoji == "" {
		emoji = defaultPartyEmoji
	}
	public := true
	if in.IsPublic != nil {
		public = *in.IsPublic
	}

	now := s.opts.now()
	party := models.Party{
		Name:            name,
		Description:     utils.SanitizeText(in.Description, maxPartyDescription),
		AvatarEmoji:     utils.SanitizeText(emoji, 8),
		CreatedBy:       userID,
		Status:          models.PartyStatusActive,
		PoolType:        poolType,
		IsPublic:        public,
		LastRolloverDay: rules.DayKey(now, s.opts.Location),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inParty int64
		if err := tx.Model(&models.PartyMember{}).Where("user_id = ?", userID).Count(&inParty).Error; err != nil {
			return err
		}
		if inParty > 0 {
			return ErrAlreadyInParty
		}
		code, err := newJoinCode(tx)
		if err != nil {
			return err
		}
		party.JoinCode = code
		if err := tx.Create(&party).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.PartyMember{
			PartyID:  party.ID,
			UserID:   userID,
			Role:     models.RoleLeader,
			JoinedAt: now,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyInParty
			}
			return err
		}
		_, err = ensureTreasury(tx, party.ID)
		return err
	})
	if err != nil {
		return nil, wrapStore("create party", err)
	}
	invalidatePartyCaches()
	utils.Sugar.Infow("party created", "party_id", party.ID, "user_id", userID, "pool", poolType)
	return s.Get(ctx, party.ID)
}

func newJoinCode(tx *gorm.DB) (string, error) {
	for i := 0; i < 16; i++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		// an all-digit code would be read as a party id
		if !strings.ContainsAny(code, "ABCDEF") {
			continue
		}
		var n int64
		if err := tx.Model(&models.Party{}).Where("join_code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique join code")
}

// Join adds userID to the party named by a numeric id or a join code.
// A private party reached by id needs a pending invite for fid; its join code alone is enough.
func (s *PartyService) Join(ctx context.Context, userID uint, fid int64, idOrCode string) (*PartyView, error) {
	idOrCode = strings.TrimSpace(idOrCode)
	if idOrCode == "" {
		return nil, fmt.Errorf("%w: party id or join code is required", ErrInvalidInput)
	}
	now := s.opts.now()
	var partyID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var party models.Party
		byCode := false
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("status = ?", models.PartyStatusActive)
		if id, perr := strconv.ParseUint(idOrCode, 10, 64); perr == nil {
			q = q.Where("id = ?", id)
		} else {
			byCode = true
			q = q.Where("join_code = ?", strings.ToUpper(idOrCode))
		}
		if err := q.First(&party).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartyNotFound
			}
			return err
		}
		partyID = party.ID

		var inParty int64
		if err := tx.Model(&models.PartyMember{}).Where("user_id = ?", userID).Count(&inParty).Error; err != nil {
			return err
		}
		if inParty > 0 {
			return ErrAlreadyInParty
		}

		var count int64
		if err := tx.Model(&models.PartyMember{}).Where("party_id = ?", party.ID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= capacityOf(&party) {
			return ErrPartyFull
		}

		if !party.IsPublic && !byCode {
			res := tx.Model(&models.PartyInvite{}).
				Where("party_id = ? AND invited_fid = ? AND status = ? AND expires_at > ?",
					party.ID, fid, models.InviteStatusPending, now).
				Update("status", models.InviteStatusAccepted)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInviteRequired
			}
		}

		if err := tx.Create(&models.PartyMember{
			PartyID:  party.ID,
			UserID:   userID,
			Role:     models.RoleMember,
			JoinedAt: now,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyInParty
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore("join party", err)
	}
	invalidatePartyCaches()
	utils.Sugar.Infow("party joined", "party_id", partyID, "user_id", userID)
	return s.Get(ctx, partyID)
}

// Leave removes userID from partyID, handing leadership on or disbanding an empty party.
// The last member out keeps their stake whole and collects whatever the rewards pool holds.
func (s *PartyService) Leave(ctx context.Context, userID, partyID uint) (*LeaveResult, error) {
	now := s.opts.now()
	result := &LeaveResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		party, err := lockParty(tx, partyID)
		if err != nil {
			return err
		}
		member, err := findMember(tx, partyID, userID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.PartyMember{}, member.ID).Error; err != nil {
			return err
		}

		var remaining []models.PartyMember
		if err := tx.Where("party_id = ?", partyID).Order("joined_at, id").Find(&remaining).Error; err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := tx.Model(&models.Party{}).Where("id = ?", partyID).
				Update("status", models.PartyStatusDisbanded).Error; err != nil {
				return err
			}
			result.Disbanded = true
		} else if member.Role == models.RoleLeader {
			next := remaining[0]
			for _, m := range remaining {
				if m.Role == models.RoleCoLeader {
					next = m
					break
				}
			}
			if err := tx.Model(&models.PartyMember{}).Where("id = ?", next.ID).
				Update("role", models.RoleLeader).Error; err != nil {
				return err
			}
			id := next.UserID
			result.NewLeaderID = &id
		}

		// nobody is left to receive an early-leave slash
		result.Slash, err = s.acct.leaveStakeTx(tx, partyID, userID, rules.PoolType(party.PoolType), !result.Disbanded, now)
		if err != nil {
			return err
		}
		if result.Disbanded {
			_, err = distributeRewardsTx(tx, partyID, []uint{userID}, now)
		}
		return err
	})
	if err != nil {
		return nil, wrapStore("leave party", err)
	}
	invalidatePartyCaches()
	utils.Sugar.Infow("party left", "party_id", partyID, "user_id", userID, "disbanded", result.Disbanded)
	return result, nil
}

// Invite records a pending invite for fid. An open invite for the same fid is reused.
func (s *PartyService) Invite(ctx context.Context, actorID, partyID uint, fid int64) (*models.PartyInvite, error) {
	if fid <= 0 {
		return nil, fmt.Errorf("%w: fid must be positive", ErrInvalidInput)
	}
	now := s.opts.now()
	var invite models.PartyInvite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadActiveParty(tx, partyID); err != nil {
			return err
		}
		if err := requirePermission(tx, partyID, actorID, func(p rules.Permissions) bool { return p.CanInvite }); err != nil {
			return err
		}
		err := tx.Where("party_id = ? AND invited_fid = ? AND status = ? AND expires_at > ?",
			partyID, fid, models.InviteStatusPending, now).First(&invite).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		invite = models.PartyInvite{
			PartyID:     partyID,
			InvitedFID:  fid,
			InvitedByID: actorID,
			Status:      models.InviteStatusPending,
			ExpiresAt:   now.Add(inviteTTL),
			CreatedAt:   now,
		}
		return tx.Create(&invite).Error
	})
	if err != nil {
		return nil, wrapStore("invite", err)
	}
	return &invite, nil
}

// Kick removes targetID. Leaders cannot be kicked and only the leader may kick a co-leader.
// A kicked member's stake starts unlocking without penalty.
func (s *PartyService) Kick(ctx context.Context, actorID, partyID, targetID uint) error {
	if actorID == targetID {
		return fmt.Errorf("%w: use leave to remove yourself", ErrInvalidInput)
	}
	now := s.opts.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		party, err := lockParty(tx, partyID)
		if err != nil {
			return err
		}
		actor, err := findMember(tx, partyID, actorID)
		if err != nil {
			return ErrForbidden
		}
		if !rules.PermissionsFor(actor.Role).CanKick {
			return ErrForbidden
		}
		target, err := findMember(tx, partyID, targetID)
		if err != nil {
			return err
		}
		if target.Role == models.RoleLeader || (target.Role == models.RoleCoLeader && actor.Role != models.RoleLeader) {
			return ErrForbidden
		}
		if err := tx.Delete(&models.PartyMember{}, target.ID).Error; err != nil {
			return err
		}
		_, err = s.acct.leaveStakeTx(tx, partyID, targetID, rules.PoolType(party.PoolType), false, now)
		return err
	})
	if err != nil {
		return wrapStore("kick", err)
	}
	invalidatePartyCaches()
	utils.Sugar.Infow("member kicked", "party_id", partyID, "by", actorID, "user_id", targetID)
	return nil
}

// SetRole changes targetID's role. Giving away "leader" demotes the actor to co-leader.
func (s *PartyService) SetRole(ctx context.Context, actorID, partyID, targetID uint, role string) error {
	switch role {
	case models.RoleLeader, models.RoleCoLeader, models.RoleMember:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if actorID == targetID {
		return fmt.Errorf("%w: cannot change your own role", ErrInvalidInput)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParty(tx, partyID); err != nil {
			return err
		}
		if err := requirePermission(tx, partyID, actorID, func(p rules.Permissions) bool { return p.CanPromote }); err != nil {
			return err
		}
		target, err := findMember(tx, partyID, targetID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PartyMember{}).Where("id = ?", target.ID).Update("role", role).Error; err != nil {
			return err
		}
		if role == models.RoleLeader {
			return tx.Model(&models.PartyMember{}).
				Where("party_id = ? AND user_id = ?", partyID, actorID).
				Update("role", models.RoleCoLeader).Error
		}
		return nil
	})
	return wrapStore("set role", err)
}

// Update edits the party's public fields.
func (s *PartyService) Update(ctx context.Context, actorID, partyID uint, in UpdatePartyInput) (*PartyView, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := utils.SanitizeText(*in.Name, maxPartyName)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = utils.SanitizeText(*in.Description, maxPartyDescription)
	}
	if in.Emoji != nil {
		emoji := utils.SanitizeText(*in.Emoji, 8)
		if emoji == "" {
			emoji = defaultPartyEmoji
		}
		updates["avatar_emoji"] = emoji
	}
	if in.IsPublic != nil {
		updates["is_public"] = *in.IsPublic
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadActiveParty(tx, partyID); err != nil {
			return err
		}
		if err := requirePermission(tx, partyID, actorID, func(p rules.Permissions) bool { return p.CanEditParty }); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Party{}).Where("id = ?", partyID).Updates(updates).Error
	})
	if err != nil {
		return nil, wrapStore("update party", err)
	}
	invalidatePartyCaches()
	return s.Get(ctx, partyID)
}

// Disband closes the party: the rewards pool is paid out, every stake is returned and all members removed.
func (s *PartyService) Disband(ctx context.Context, actorID, partyID uint) error {
	now := s.opts.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParty(tx, partyID); err != nil {
			return err
		}
		if err := requirePermission(tx, partyID, actorID, func(p rules.Permissions) bool { return p.CanDisband }); err != nil {
			return err
		}
		var userIDs []uint
		if err := tx.Model(&models.PartyMember{}).Where("party_id = ?", partyID).Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		if _, err := distributeRewardsTx(tx, partyID, userIDs, now); err != nil {
			return err
		}
		var stakes []models.MemberStake
		if err := tx.Where("party_id = ? AND status <> ?", partyID, models.StakeWithdrawn).Find(&stakes).Error; err != nil {
			return err
		}
		for i := range stakes {
			if err := releaseStakeTx(tx, &stakes[i]); err != nil {
				return err
			}
		}
		if err := tx.Where("party_id = ?", partyID).Delete(&models.PartyMember{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Party{}).Where("id = ?", partyID).
			Update("status", models.PartyStatusDisbanded).Error
	})
	if err != nil {
		return wrapStore("disband party", err)
	}
	invalidatePartyCaches()
	utils.Sugar.Infow("party disbanded", "party_id", partyID, "by", actorID)
	return nil
}

// Get loads a party with its members and derived figures.
func (s *PartyService) Get(ctx context.Context, partyID uint) (*PartyView, error) {
	var party models.Party
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at, id") }).
		Preload("Members.User").
		First(&party, partyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, fmt.Errorf("load party: %w", err)
	}
	return s.view(&party), nil
}

// Mine returns the party the user belongs to.
func (s *PartyService) Mine(ctx context.Context, userID uint) (*PartyView, error) {
	var member models.PartyMember
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInParty
		}
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return s.Get(ctx, member.PartyID)
}

// Discover lists public active parties with free seats, busiest first.
func (s *PartyService) Discover(ctx context.Context, limit int) ([]PartyView, error) {
	if limit <= 0 || limit > maxLeaderboard {
		limit = 20
	}
	return utils.CacheLoad(utils.CacheKeyPartyDiscover+strconv.Itoa(limit), leaderboardTTL, func() ([]PartyView, error) {
		var parties []models.Party
		if err := s.db.WithContext(ctx).
			Where("status = ? AND is_public = ?", models.PartyStatusActive, true).
			Order("weekly_xp desc, id").Limit(limit * 2).Find(&parties).Error; err != nil {
			return nil, fmt.Errorf("discover parties: %w", err)
		}
		counts, err := memberCounts(s.db.WithContext(ctx), parties)
		if err != nil {
			return nil, err
		}
		out := make([]PartyView, 0, limit)
		for i := range parties {
			v := s.viewWithCount(&parties[i], counts[parties[i].ID], 0)
			if v.MemberCount >= v.Capacity {
				continue
			}
			out = append(out, *v)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	})
}

// Leaderboard ranks active parties by weekly XP.
func (s *PartyService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > maxLeaderboard {
		limit = maxLeaderboard
	}
	return utils.CacheLoad(utils.CacheKeyPartyLeaderboard+strconv.Itoa(limit), leaderboardTTL, func() ([]LeaderboardEntry, error) {
		var parties []models.Party
		if err := s.db.WithContext(ctx).
			Where("status = ?", models.PartyStatusActive).
			Order("weekly_xp desc, total_xp desc, id").Limit(limit).Find(&parties).Error; err != nil {
			return nil, fmt.Errorf("leaderboard: %w", err)
		}
		counts, err := memberCounts(s.db.WithContext(ctx), parties)
		if err != nil {
			return nil, err
		}
		out := make([]LeaderboardEntry, 0, len(parties))
		for i, p := range parties {
			out = append(out, LeaderboardEntry{
				Rank:        i + 1,
				PartyID:     p.ID,
				Name:        p.Name,
				AvatarEmoji: p.AvatarEmoji,
				Tier:        rules.TierForXP(p.TotalXP).Tier,
				WeeklyXP:    p.WeeklyXP,
				TotalXP:     p.TotalXP,
				PartyStreak: p.PartyStreak,
				MemberCount: counts[p.ID],
			})
		}
		return out, nil
	})
}

// Rollover settles the day before day for every active party. Parties already settled for day are skipped,
// so running it twice is harmless. An empty day means today.
func (s *PartyService) Rollover(ctx context.Context, day string) (*RolloverReport, error) {
	if day == "" {
		day = s.opts.today()
	}
	settled := rules.PreviousDay(day)
	if settled == "" {
		return nil, fmt.Errorf("%w: malformed day %q", ErrInvalidInput, day)
	}
	now := s.opts.now()
	if err := s.acct.Advance(ctx, now); err != nil {
		return nil, err
	}

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Party{}).
		Where("status = ? AND (last_rollover_day IS NULL OR last_rollover_day < ?)", models.PartyStatusActive, day).
		Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list parties for rollover: %w", err)
	}

	report := &RolloverReport{Day: day, Parties: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.settleParty(tx, id, day, settled, now, report)
		})
		if err != nil {
			report.Failed++
			utils.Sugar.Errorw("party rollover failed", "party_id", id, "day", day, "error", err)
		}
	}
	if report.Settled > 0 {
		invalidatePartyCaches()
	}
	utils.Sugar.Infow("rollover finished", "day", day, "parties", report.Parties,
		"settled", report.Settled, "bonus_xp", report.BonusXP, "slashed", report.Slashed, "failed", report.Failed)
	return report, nil
}

func (s *PartyService) settleParty(tx *gorm.DB, partyID uint, day, settled string, now time.Time, report *RolloverReport) error {
	party, err := lockParty(tx, partyID)
	if err != nil {
		return err
	}
	if party.Status != models.PartyStatusActive || party.LastRolloverDay >= day {
		return nil
	}

	var members []models.PartyMember
	if err := tx.Where("party_id = ?", partyID).Order("joined_at, id").Find(&members).Error; err != nil {
		return err
	}
	userIDs := make([]uint, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	danced, err := dancedOn(tx, userIDs, settled)
	if err != nil {
		return err
	}
	dancedToday, err := dancedOn(tx, userIDs, day)
	if err != nil {
		return err
	}

	var active []uint
	for _, uid := range userIDs {
		if danced[uid] {
			active = append(active, uid)
		}
	}
	total := len(members)

	// bonus uses the multiplier the party carried through the settled day
	tier := rules.TierForXP(party.TotalXP)
	multiplier := rules.CalculatePartyMultiplier(len(active), total, party.PartyStreak, tier.MultiplierBonus)
	var bonusTotal int64
	baseXP, err := xpEarnedOn(tx, userIDs, settled)
	if err != nil {
		return err
	}
	todayXP, err := xpEarnedOn(tx, userIDs, day)
	if err != nil {
		return err
	}
	for _, b := range rules.CalculatePartyXPDistribution(int(baseXP), multiplier, active) {
		if b.BonusXP <= 0 {
			continue
		}
		if err := creditXP(tx, b.MemberID, int64(b.BonusXP)); err != nil {
			return err
		}
		if err := tx.Model(&models.PartyMember{}).Where("party_id = ? AND user_id = ?", partyID, b.MemberID).
			Update("total_contributions", gorm.Expr("total_contributions + ?", b.BonusXP)).Error; err != nil {
			return err
		}
		bonusTotal += int64(b.BonusXP)
	}

	streak := party.PartyStreak
	streakBroke := false
	if total > 0 && len(active) == total {
		streak++
	} else {
		streakBroke = streak > 0
		streak = 0
	}
	longest := party.LongestPartyStreak
	if streak > longest {
		longest = streak
	}

	pool := rules.PoolType(party.PoolType)
	inactive := make([]models.PartyMember, 0, total)
	var inactiveIDs []uint
	for _, m := range members {
		if !danced[m.UserID] && rules.DayKey(m.JoinedAt, s.opts.Location) < settled {
			inactive = append(inactive, m)
			inactiveIDs = append(inactiveIDs, m.UserID)
		}
	}
	if len(inactive) > 0 {
		hadStreak, err := dancedOn(tx, inactiveIDs, rules.PreviousDay(settled))
		if err != nil {
			return err
		}
		var users []models.User
		if err := tx.Select("id", "last_checkin_day").Where("id IN ?", inactiveIDs).Find(&users).Error; err != nil {
			return err
		}
		lastDay := make(map[uint]string, len(users))
		for _, u := range users {
			lastDay[u.ID] = u.LastCheckinDay
		}
		threshold := rules.DefaultSlashConfig[pool].InactivityThresholdDays

		for _, m := range inactive {
			var stake models.MemberStake
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("party_id = ? AND user_id = ? AND status IN ? AND amount > 0",
					partyID, m.UserID, []string{models.StakeLocked, models.StakeActive}).
				First(&stake).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			reasons := []rules.SlashReason{missReason(lastDay[m.UserID], rules.DayKey(m.JoinedAt, s.opts.Location), settled, threshold, hadStreak[m.UserID])}
			if streakBroke {
				reasons = append(reasons, rules.SlashPartyStreakBreak)
			}
			for _, reason := range reasons {
				out, err := s.acct.slashTx(tx, &stake, pool, reason, now)
				if err != nil {
					return err
				}
				if out.Protected {
					report.Protected++
				} else if out.Amount > 0 {
					report.Slashed++
				}
			}
		}
	}

	if _, err := distributeRewardsTx(tx, partyID, active, now); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"party_streak":         streak,
		"longest_party_streak": longest,
		"daily_xp":             todayXP,
		"last_rollover_day":    day,
		"total_xp":             gorm.Expr("total_xp + ?", bonusTotal),
		"bonus_xp_distributed": gorm.Expr("bonus_xp_distributed + ?", bonusTotal),
	}
	if t, err := time.Parse(rules.DayLayout, day); err == nil && t.Weekday() == time.Monday {
		updates["weekly_xp"] = todayXP
	}
	if err := tx.Model(&models.Party{}).Where("id = ?", partyID).Updates(updates).Error; err != nil {
		return err
	}

	var keep []uint
	for uid := range dancedToday {
		keep = append(keep, uid)
	}
	reset := tx.Model(&models.PartyMember{}).Where("party_id = ?", partyID)
	if len(keep) > 0 {
		reset = reset.Where("user_id NOT IN ?", keep)
	}
	if err := reset.Update("is_active_today", false).Error; err != nil {
		return err
	}

	report.Settled++
	report.BonusXP += bonusTotal
	return nil
}

// missReason picks the penalty for a member who did not dance on settled.
func missReason(lastCheckin, joinDay, settled string, threshold int, hadStreak bool) rules.SlashReason {
	from := lastCheckin
	if from == "" || from >= settled {
		from = joinDay
	}
	missed := rules.DaysBetween(from, settled)
	if missed < 1 {
		missed = 1
	}
	switch {
	case threshold > 0 && missed >= threshold:
		return rules.SlashInactivity
	case hadStreak:
		return rules.SlashStreakBreak
	default:
		return rules.SlashMissedCheckin
	}
}

// dancedOn returns which of userIDs have a did_dance check-in on day.
func dancedOn(tx *gorm.DB, userIDs []uint, day string) (map[uint]bool, error) {
	out := make(map[uint]bool, len(userIDs))
	if len(userIDs) == 0 || day == "" {
		return out, nil
	}
	var ids []uint
	if err := tx.Model(&models.Checkin{}).
		Where("user_id IN ? AND checkin_day = ? AND did_dance = ?", userIDs, day, true).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// xpEarnedOn sums the check-in XP userIDs earned on day.
func xpEarnedOn(tx *gorm.DB, userIDs []uint, day string) (int64, error) {
	var total int64
	if len(userIDs) == 0 {
		return 0, nil
	}
	err := tx.Model(&models.Checkin{}).
		Where("user_id IN ? AND checkin_day = ?", userIDs, day).
		Select("COALESCE(SUM(xp_earned), 0)").Scan(&total).Error
	return total, err
}

// creditXP adds xp to a user and recomputes the level under the user's row lock.
func creditXP(tx *gorm.DB, userID uint, xp int64) error {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "xp").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"xp":    gorm.Expr("xp + ?", xp),
		"level": rules.LevelForXP(user.XP + xp),
	}).Error
}

func (s *PartyService) view(p *models.Party) *PartyView {
	active := 0
	for _, m := range p.Members {
		if m.IsActiveToday {
			active++
		}
	}
	return s.viewWithCount(p, len(p.Members), active)
}

func (s *PartyService) viewWithCount(p *models.Party, members, active int) *PartyView {
	tier := rules.TierForXP(p.TotalXP)
	pool, ok := rules.PoolByType(p.PoolType)
	if !ok {
		pool = rules.PartyPools[rules.PoolIntimate]
	}
	return &PartyView{
		Party:             *p,
		Tier:              tier,
		Pool:              pool,
		Capacity:          rules.PartyCapacity(pool, tier, p.ExtraSlots),
		MemberCount:       members,
		ActiveMembers:     active,
		CurrentMultiplier: rules.CalculatePartyMultiplier(active, members, p.PartyStreak, tier.MultiplierBonus),
	}
}

func capacityOf(p *models.Party) int {
	pool, ok := rules.PoolByType(p.PoolType)
	if !ok {
		pool = rules.PartyPools[rules.PoolIntimate]
	}
	return rules.PartyCapacity(pool, rules.TierForXP(p.TotalXP), p.ExtraSlots)
}

func memberCounts(db *gorm.DB, parties []models.Party) (map[uint]int, error) {
	out := make(map[uint]int, len(parties))
	if len(parties) == 0 {
		return out, nil
	}
	ids := make([]uint, 0, len(parties))
	for _, p := range parties {
		ids = append(ids, p.ID)
	}
	var rows []struct {
		PartyID uint
		N       int
	}
	if err := db.Model(&models.PartyMember{}).Select("party_id, count(*) as n").
		Where("party_id IN ?", ids).Group("party_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	for _, r := range rows {
		out[r.PartyID] = r.N
	}
	return out, nil
}

func loadParty(tx *gorm.DB, partyID uint) (*models.Party, error) {
	var party models.Party
	if err := tx.First(&party, partyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}

func loadActiveParty(tx *gorm.DB, partyID uint) (*models.Party, error) {
	party, err := loadParty(tx, partyID)
	if err != nil {
		return nil, err
	}
	if party.Status != models.PartyStatusActive {
		return nil, ErrPartyNotFound
	}
	return party, nil
}

func lockParty(tx *gorm.DB, partyID uint) (*models.Party, error) {
	var party models.Party
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND status = ?", partyID, models.PartyStatusActive).First(&party).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}

func findMember(tx *gorm.DB, partyID, userID uint) (*models.PartyMember, error) {
	var member models.PartyMember
	if err := tx.Where("party_id = ? AND user_id = ?", partyID, userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInParty
		}
		return nil, err
	}
	return &member, nil
}

func requirePermission(tx *gorm.DB, partyID, userID uint, allowed func(rules.Permissions) bool) error {
	member, err := findMember(tx, partyID, userID)
	if err != nil {
		if errors.Is(err, ErrNotInParty) {
			return ErrForbidden
		}
		return err
	}
	if !allowed(rules.PermissionsFor(member.Role)) {
		return ErrForbidden
	}
	return nil
}

func invalidatePartyCaches() {
	utils.InvalidateByPrefix(utils.CacheKeyPartyLeaderboard)
	utils.InvalidateByPrefix(utils.CacheKeyPartyDiscover)
}
