package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

const checkinInFlightTTL = 10 * time.Second

// Profile is the display data known about a Farcaster account at sign-in.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PfpURL      string `json:"pfp_url"`
}

// UserStats is the aggregate shown next to every check-in response.
type UserStats struct {
	TotalXP       int64 `json:"total_xp"`
	CurrentStreak int   `json:"current_streak"`
	LongestStreak int   `json:"longest_streak"`
	Level         int   `json:"level"`
	TotalCheckins int   `json:"total_checkins"`
	DanzBalance   int64 `json:"danz_balance"`
}

// CheckinResult is what RecordCheckin applied.
type CheckinResult struct {
	Checkin   *models.Checkin `json:"checkin"`
	NewStreak int             `json:"new_streak"`
	XPEarned  int             `json:"xp_earned"`
	Level     int             `json:"level"`
	LeveledUp bool            `json:"leveled_up"`
	PartyID   *uint           `json:"party_id,omitempty"`
}

// CheckinService records daily check-ins and owns user aggregates.
type CheckinService struct {
	db   *gorm.DB
	opts Options
}

// NewCheckinService creates a check-in service.
func NewCheckinService(db *gorm.DB, opts ...Option) *CheckinService {
	return &CheckinService{db: db, opts: newOptions(opts)}
}

// Today returns the current day key.
func (s *CheckinService) Today() string { return s.opts.today() }

// GetUser loads a user by id.
func (s *CheckinService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// GetUserByFid loads the user that owns a Farcaster fid.
func (s *CheckinService) GetUserByFid(ctx context.Context, fid int64) (*models.User, error) {
	if fid <= 0 {
		return nil, fmt.Errorf("%w: fid must be positive", ErrInvalidInput)
	}
	var user models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN auth_providers ON auth_providers.user_id = users.id").
		Where("auth_providers.provider = ? AND auth_providers.provider_id = ?", models.ProviderFarcaster, strconv.FormatInt(fid, 10)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Where("farcaster_fid = ?", fid).First(&user).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user by fid: %w", err)
	}
	return &user, nil
}

// GetOrCreateUserByFid finds the account for fid or creates it with its primary
// Farcaster identity. created reports whether a new account was made.
func (s *CheckinService) GetOrCreateUserByFid(ctx context.Context, fid int64, profile *Profile) (user *models.User, created bool, err error) {
	user, err = s.GetUserByFid(ctx, fid)
	if err == nil {
		now := s.opts.now()
		updates := map[string]interface{}{"last_active_at": now}
		if profile != nil {
			if profile.Username != "" {
				updates["username"] = utils.SanitizeText(profile.Username, 64)
			}
			if profile.DisplayName != "" {
				updates["display_name"] = utils.SanitizeText(profile.DisplayName, 128)
			}
			if profile.PfpURL != "" {
				updates["avatar_url"] = profile.PfpURL
			}
		}
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("touch user: %w", err)
		}
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	now := s.opts.now()
	user = &models.User{
		ExternalID:   "fc-" + strconv.FormatInt(fid, 10),
		FarcasterFID: fid,
		DanzBalance:  s.opts.StarterGrant,
		Level:        1,
		LastActiveAt: &now,
	}
	meta := models.ProviderMetadata{}
	if profile != nil {
		user.Username = utils.SanitizeText(profile.Username, 64)
		user.DisplayName = utils.SanitizeText(profile.DisplayName, 128)
		user.AvatarURL = profile.PfpURL
		meta.Username = user.Username
		meta.DisplayName = user.DisplayName
		meta.PfpURL = user.AvatarURL
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&models.AuthProvider{
			UserID:     user.ID,
			Provider:   models.ProviderFarcaster,
			ProviderID: strconv.FormatInt(fid, 10),
			IsPrimary:  true,
			Metadata:   datatypes.NewJSONType(meta),
			LinkedAt:   now,
		}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent sign-in for the same fid
		user, err = s.GetUserByFid(ctx, fid)
		return user, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	utils.Sugar.Infow("user created", "user_id", user.ID, "fid", fid)
	return user, true, nil
}

// GetTodayCheckin returns today's check-in for the user, or nil when there is none.
func (s *CheckinService) GetTodayCheckin(ctx context.Context, userID uint) (*models.Checkin, error) {
	var checkin models.Checkin
	err := s.db.WithContext(ctx).Where("user_id = ? AND checkin_day = ?", userID, s.opts.today()).First(&checkin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load today's check-in: %w", err)
	}
	return &checkin, nil
}

// RecordCheckin applies today's check-in exactly once. When the user already checked in,
// it returns ErrAlreadyCheckedIn together with a result holding the existing row.
// A non-zero fid must belong to the user.
func (s *CheckinService) RecordCheckin(ctx context.Context, userID uint, fid int64, didDance bool, reflection *models.Reflection) (*CheckinResult, error) {
	now := s.opts.now()
	today := rules.DayKey(now, s.opts.Location)

	guard := fmt.Sprintf("checkin:inflight:%d:%s", userID, today)
	if !utils.TryAcquire(ctx, guard, checkinInFlightTTL) {
		return nil, ErrCheckinInFlight
	}
	defer utils.Release(context.Background(), guard)

	var result CheckinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if fid != 0 && user.FarcasterFID != fid {
			return ErrFIDMismatch
		}

		var existing models.Checkin
		err := tx.Where("user_id = ? AND checkin_day = ?", userID, today).First(&existing).Error
		if err == nil {
			result.Checkin = &existing
			result.NewStreak = existing.StreakCount
			return ErrAlreadyCheckedIn
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hasReflection := rules.HasReflection(reflection)
		streak := rules.NextStreak(rules.EffectiveStreak(user.CurrentStreak, user.LastCheckinDay, today), didDance)
		reward := rules.CalculateCheckinXP(streak, hasReflection)

		var refl models.Reflection
		if reflection != nil {
			refl = models.Reflection{
				Feeling:  utils.SanitizeText(reflection.Feeling, 64),
				Benefits: sanitizeList(reflection.Benefits, 10, 64),
				Note:     utils.SanitizeText(reflection.Note, 500),
			}
		}
		checkin := models.Checkin{
			UserID:          userID,
			CheckinDay:      today,
			CheckedInAt:     now,
			DidDance:        didDance,
			StreakCount:     streak,
			BaseXP:          reward.BaseXP,
			StreakBonus:     reward.StreakBonus,
			ReflectionBonus: reward.ReflectionBonus,
			XPEarned:        reward.TotalXP,
			Reflection:      datatypes.NewJSONType(refl),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&checkin)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("user_id = ? AND checkin_day = ?", userID, today).First(&existing).Error; err == nil {
				result.Checkin = &existing
				result.NewStreak = existing.StreakCount
			}
			return ErrAlreadyCheckedIn
		}

		longest := user.LongestStreak
		if streak > longest {
			longest = streak
		}
		level := rules.LevelForXP(user.XP + int64(reward.TotalXP))
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"xp":               gorm.Expr("xp + ?", reward.TotalXP),
			"total_checkins":   gorm.Expr("total_checkins + 1"),
			"current_streak":   streak,
			"longest_streak":   longest,
			"level":            level,
			"last_checkin_day": today,
			"last_checkin_at":  now,
			"last_active_at":   now,
		}).Error; err != nil {
			return err
		}

		partyID, err := mirrorCheckinOnParty(tx, userID, streak, didDance, int64(reward.TotalXP), now)
		if err != nil {
			return err
		}

		result = CheckinResult{
			Checkin:   &checkin,
			NewStreak: streak,
			XPEarned:  reward.TotalXP,
			Level:     level,
			LeveledUp: level > user.Level,
			PartyID:   partyID,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCheckedIn) {
			return &result, ErrAlreadyCheckedIn
		}
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrFIDMismatch) {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &result, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("record check-in: %w", err)
	}

	if result.PartyID != nil {
		utils.InvalidateByPrefix(utils.CacheKeyPartyLeaderboard)
	}
	utils.Sugar.Infow("check-in recorded",
		"user_id", userID, "day", today, "did_dance", didDance,
		"streak", result.NewStreak, "xp", result.XPEarned)
	return &result, nil
}

// mirrorCheckinOnParty copies the check-in onto the user's membership and the party counters.
func mirrorCheckinOnParty(tx *gorm.DB, userID uint, streak int, didDance bool, xp int64, now time.Time) (*uint, error) {
	var member models.PartyMember
	err := tx.Where("user_id = ?", userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var party models.Party
	if err := tx.Select("id", "status").First(&party, member.PartyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if party.Status != models.PartyStatusActive {
		return nil, nil
	}

	if err := tx.Model(&models.PartyMember{}).Where("id = ?", member.ID).Updates(map[string]interface{}{
		"current_streak":      streak,
		"last_checkin_at":     now,
		"is_active_today":     didDance,
		"total_contributions": gorm.Expr("total_contributions + ?", xp),
	}).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Party{}).Where("id = ?", party.ID).Updates(map[string]interface{}{
		"daily_xp":  gorm.Expr("daily_xp + ?", xp),
		"weekly_xp": gorm.Expr("weekly_xp + ?", xp),
		"total_xp":  gorm.Expr("total_xp + ?", xp),
	}).Error; err != nil {
		return nil, err
	}
	id := party.ID
	return &id, nil
}

// GetUserStats returns the aggregate stats; a streak whose last day was missed reads as 0.
func (s *CheckinService) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.StatsFor(user), nil
}

// StatsFor builds stats from an already loaded user.
func (s *CheckinService) StatsFor(user *models.User) *UserStats {
	return &UserStats{
		TotalXP:       user.XP,
		CurrentStreak: rules.EffectiveStreak(user.CurrentStreak, user.LastCheckinDay, s.opts.today()),
		LongestStreak: user.LongestStreak,
		Level:         user.Level,
		TotalCheckins: user.TotalCheckins,
		DanzBalance:   user.DanzBalance,
	}
}

func sanitizeList(in []string, maxItems, maxRunes int) []string {
	var out []string
	for _, v := range in {
		if v = utils.SanitizeText(v, maxRunes); v != "" {
			out = append(out, v)
		}
		if len(out) == maxItems {
			break
		}
	}
	return out
}
