package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

const unstakeDelay = 24 * time.Hour

// SlashOutcome is the result of one slash decision.
type SlashOutcome struct {
	Event     *models.SlashEvent `json:"event,omitempty"`
	Amount    int64              `json:"amount"`
	Protected bool               `json:"protected"`
}

// TreasuryView is a treasury with its latest slash events.
type TreasuryView struct {
	Treasury      models.PartyTreasury `json:"treasury"`
	RecentSlashes []models.SlashEvent  `json:"recent_slashes"`
}

// AccountabilityService manages stakes, slashing and treasury payouts.
type AccountabilityService struct {
	db     *gorm.DB
	opts   Options
	config rules.SlashConfig
}

// NewAccountabilityService creates the service with the default slash table.
func NewAccountabilityService(db *gorm.DB, opts ...Option) *AccountabilityService {
	return &AccountabilityService{db: db, opts: newOptions(opts), config: rules.DefaultSlashConfig}
}

// Stake puts amount DANZ at risk in the user's party. Adding to a live stake extends its lock.
func (s *AccountabilityService) Stake(ctx context.Context, userID, partyID uint, amount int64) (*models.MemberStake, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	now := s.opts.now()
	var stake models.MemberStake
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		party, err := loadActiveParty(tx, partyID)
		if err != nil {
			return err
		}
		if _, err := findMember(tx, partyID, userID); err != nil {
			return err
		}
		pool, _ := rules.PoolByType(party.PoolType)
		lockDays := pool.LockPeriodDays
		if pc, ok := s.config[rules.PoolType(party.PoolType)]; ok {
			lockDays = pc.LockPeriodDays
		}

		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("party_id = ? AND user_id = ?", partyID, userID).First(&stake).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if amount < pool.MinStake {
				return ErrBelowMinStake
			}
			stake = models.MemberStake{PartyID: partyID, UserID: userID}
		case err != nil:
			return err
		case stake.Status == models.StakeWithdrawn:
			if amount < pool.MinStake {
				return ErrBelowMinStake
			}
			stake.Amount = 0
			stake.UnlocksAt = nil
		case stake.Status == models.StakeUnlocking || stake.Status == models.StakeWithdrawable:
			return ErrStakeState
		}

		if err := debitBalance(tx, userID, amount); err != nil {
			return err
		}
		stake.Amount += amount
		stake.Status = models.StakeLocked
		stake.LockedUntil = now.AddDate(0, 0, lockDays)
		if err := tx.Save(&stake).Error; err != nil {
			return err
		}
		if _, err := ensureTreasury(tx, partyID); err != nil {
			return err
		}
		return tx.Model(&models.PartyTreasury{}).Where("party_id = ?", partyID).Updates(map[string]interface{}{
			"staking_pool":  gorm.Expr("staking_pool + ?", amount),
			"total_balance": gorm.Expr("total_balance + ?", amount),
		}).Error
	})
	if err != nil {
		return nil, wrapStore("stake", err)
	}
	utils.Sugar.Infow("stake placed", "user_id", userID, "party_id", partyID, "amount", amount)
	return &stake, nil
}

// RequestUnstake starts the 24h unlock of an active stake.
func (s *AccountabilityService) RequestUnstake(ctx context.Context, userID, stakeID uint) (*models.MemberStake, error) {
	now := s.opts.now()
	var stake models.MemberStake
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwnStake(tx, stakeID, userID, &stake); err != nil {
			return err
		}
		if stake.Status == models.StakeLocked {
			if now.Before(stake.LockedUntil) {
				return ErrStakeLocked
			}
			stake.Status = models.StakeActive
		}
		if stake.Status != models.StakeActive {
			return ErrStakeState
		}
		unlocks := now.Add(unstakeDelay)
		stake.Status = models.StakeUnlocking
		stake.UnlocksAt = &unlocks
		return tx.Save(&stake).Error
	})
	if err != nil {
		return nil, wrapStore("request unstake", err)
	}
	return &stake, nil
}

// Withdraw returns a withdrawable stake to the user's balance.
func (s *AccountabilityService) Withdraw(ctx context.Context, userID, stakeID uint) (*models.MemberStake, int64, error) {
	now := s.opts.now()
	var stake models.MemberStake
	var paid int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwnStake(tx, stakeID, userID, &stake); err != nil {
			return err
		}
		if stake.Status == models.StakeUnlocking && stake.UnlocksAt != nil && !now.Before(*stake.UnlocksAt) {
			stake.Status = models.StakeWithdrawable
		}
		if stake.Status != models.StakeWithdrawable {
			return ErrStakeState
		}
		paid = stake.Amount
		if err := releaseStakeTx(tx, &stake); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, 0, wrapStore("withdraw", err)
	}
	utils.Sugar.Infow("stake withdrawn", "user_id", userID, "stake_id", stakeID, "amount", paid)
	return &stake, paid, nil
}

// releaseStakeTx pays the remaining stake back and marks it withdrawn.
func releaseStakeTx(tx *gorm.DB, stake *models.MemberStake) error {
	amount := stake.Amount
	if amount > 0 {
		if err := tx.Model(&models.User{}).Where("id = ?", stake.UserID).
			Update("danz_balance", gorm.Expr("danz_balance + ?", amount)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PartyTreasury{}).Where("party_id = ?", stake.PartyID).Updates(map[string]interface{}{
			"staking_pool":  gorm.Expr("staking_pool - ?", amount),
			"total_balance": gorm.Expr("total_balance - ?", amount),
		}).Error; err != nil {
			return err
		}
	}
	stake.Amount = 0
	stake.Status = models.StakeWithdrawn
	return tx.Save(stake).Error
}

// MyStakes lists the user's stakes, newest first.
func (s *AccountabilityService) MyStakes(ctx context.Context, userID uint) ([]models.MemberStake, error) {
	var stakes []models.MemberStake
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id desc").Find(&stakes).Error; err != nil {
		return nil, fmt.Errorf("list stakes: %w", err)
	}
	return stakes, nil
}

// Treasury returns the party treasury and its last 20 slash events.
func (s *AccountabilityService) Treasury(ctx context.Context, partyID uint) (*TreasuryView, error) {
	var view TreasuryView
	err := s.db.WithContext(ctx).Where("party_id = ?", partyID).First(&view.Treasury).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, err := loadParty(s.db.WithContext(ctx), partyID); err != nil {
			return nil, err
		}
		view.Treasury = models.PartyTreasury{PartyID: partyID}
	} else if err != nil {
		return nil, fmt.Errorf("load treasury: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("party_id = ?", partyID).
		Order("id desc").Limit(20).Find(&view.RecentSlashes).Error; err != nil {
		return nil, fmt.Errorf("load slash events: %w", err)
	}
	return &view, nil
}

// Slash applies one penalty to a stake at time now.
func (s *AccountabilityService) Slash(ctx context.Context, stakeID uint, reason rules.SlashReason, now time.Time) (*SlashOutcome, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: unknown slash reason %q", ErrInvalidInput, reason)
	}
	var out *SlashOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stake models.MemberStake
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stake, stakeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStakeNotFound
			}
			return err
		}
		party, err := loadParty(tx, stake.PartyID)
		if err != nil {
			return err
		}
		out, err = s.slashTx(tx, &stake, rules.PoolType(party.PoolType), reason, now)
		return err
	})
	if err != nil {
		return nil, wrapStore("slash", err)
	}
	return out, nil
}

// slashTx expects the stake row to be locked by the caller.
func (s *AccountabilityService) slashTx(tx *gorm.DB, stake *models.MemberStake, pool rules.PoolType, reason rules.SlashReason, now time.Time) (*SlashOutcome, error) {
	if stake.Status == models.StakeWithdrawn {
		return &SlashOutcome{}, nil
	}
	amount := rules.CalculateSlashAmount(stake.Amount, reason, pool, s.config)
	if amount <= 0 {
		return &SlashOutcome{}, nil
	}

	protection, err := consumeProtection(tx, stake.UserID, now.In(s.opts.Location))
	if err != nil {
		return nil, err
	}
	event := &models.SlashEvent{
		PartyID:         stake.PartyID,
		UserID:          stake.UserID,
		StakeID:         stake.ID,
		Reason:          string(reason),
		RedistributedTo: "treasury",
		CreatedAt:       now,
	}
	if protection != "" {
		event.WasProtected = true
		event.ProtectionUsed = protection
		if err := tx.Create(event).Error; err != nil {
			return nil, err
		}
		utils.Sugar.Infow("slash blocked", "user_id", stake.UserID, "party_id", stake.PartyID,
			"reason", reason, "protection", protection)
		return &SlashOutcome{Event: event, Protected: true}, nil
	}

	if amount > stake.Amount {
		amount = stake.Amount
	}
	event.Amount = amount
	if err := tx.Create(event).Error; err != nil {
		return nil, err
	}
	stake.Amount -= amount
	stake.TotalSlashed += amount
	if err := tx.Model(&models.MemberStake{}).Where("id = ?", stake.ID).Updates(map[string]interface{}{
		"amount":        stake.Amount,
		"total_slashed": stake.TotalSlashed,
	}).Error; err != nil {
		return nil, err
	}
	if _, err := ensureTreasury(tx, stake.PartyID); err != nil {
		return nil, err
	}
	if err := tx.Model(&models.PartyTreasury{}).Where("party_id = ?", stake.PartyID).Updates(map[string]interface{}{
		"staking_pool": gorm.Expr("staking_pool - ?", amount),
		"rewards_pool": gorm.Expr("rewards_pool + ?", amount),
	}).Error; err != nil {
		return nil, err
	}
	utils.Sugar.Infow("stake slashed", "user_id", stake.UserID, "party_id", stake.PartyID,
		"reason", reason, "amount", amount)
	return &SlashOutcome{Event: event, Amount: amount}, nil
}

// consumeProtection returns the item that blocks a slash at now, or "" when none does.
// Timed items are checked first; a slash-protection charge is spent only when nothing else covers it.
func consumeProtection(tx *gorm.DB, userID uint, now time.Time) (string, error) {
	var timed []models.InventoryItem
	if err := tx.Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("expires_at desc").Find(&timed).Error; err != nil {
		return "", err
	}
	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	for _, inv := range timed {
		item, ok := rules.ShopItemByID(inv.ItemID)
		if !ok {
			continue
		}
		switch item.Effect.Type {
		case rules.EffectTimedImmunity, rules.EffectVacationProtection:
			return item.ID, nil
		case rules.EffectWeekendProtection:
			if weekend {
				return item.ID, nil
			}
		}
	}

	var charged []models.InventoryItem
	if err := tx.Where("user_id = ? AND uses_remaining > 0 AND item_id IN ?", userID, chargeItemIDs()).
		Order("id").Find(&charged).Error; err != nil {
		return "", err
	}
	for _, inv := range charged {
		res := tx.Model(&models.InventoryItem{}).
			Where("id = ? AND uses_remaining > 0", inv.ID).
			Update("uses_remaining", gorm.Expr("uses_remaining - 1"))
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return inv.ItemID, nil
		}
	}
	return "", nil
}

func chargeItemIDs() []string {
	var ids []string
	for _, it := range rules.ShopItems {
		if it.IsChargeBased() {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// DistributeRewards splits the rewards pool evenly between recipients. The floor remainder stays banked.
func (s *AccountabilityService) DistributeRewards(ctx context.Context, partyID uint, recipients []uint) (int64, error) {
	var per int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		per, err = distributeRewardsTx(tx, partyID, recipients, s.opts.now())
		return err
	})
	if err != nil {
		return 0, wrapStore("distribute rewards", err)
	}
	return per, nil
}

func distributeRewardsTx(tx *gorm.DB, partyID uint, recipients []uint, now time.Time) (int64, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	var treasury models.PartyTreasury
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("party_id = ?", partyID).First(&treasury).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	per := treasury.RewardsPool / int64(len(recipients))
	if per <= 0 {
		return 0, nil
	}
	total := per * int64(len(recipients))
	for _, uid := range recipients {
		if err := tx.Model(&models.User{}).Where("id = ?", uid).
			Update("danz_balance", gorm.Expr("danz_balance + ?", per)).Error; err != nil {
			return 0, err
		}
		if err := tx.Model(&models.MemberStake{}).Where("party_id = ? AND user_id = ?", partyID, uid).
			Update("total_earned", gorm.Expr("total_earned + ?", per)).Error; err != nil {
			return 0, err
		}
	}
	if err := tx.Model(&models.PartyTreasury{}).Where("id = ?", treasury.ID).Updates(map[string]interface{}{
		"rewards_pool":         gorm.Expr("rewards_pool - ?", total),
		"total_balance":        gorm.Expr("total_balance - ?", total),
		"last_distribution_at": now,
	}).Error; err != nil {
		return 0, err
	}
	utils.Sugar.Infow("rewards distributed", "party_id", partyID, "recipients", len(recipients), "per_member", per)
	return per, nil
}

// Advance applies the time-based stake transitions that are due at now.
func (s *AccountabilityService) Advance(ctx context.Context, now time.Time) error {
	now = now.In(s.opts.Location)
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.MemberStake{}).
		Where("status = ? AND locked_until <= ?", models.StakeLocked, now).
		Update("status", models.StakeActive).Error; err != nil {
		return fmt.Errorf("activate stakes: %w", err)
	}
	if err := db.Model(&models.MemberStake{}).
		Where("status = ? AND unlocks_at <= ?", models.StakeUnlocking, now).
		Update("status", models.StakeWithdrawable).Error; err != nil {
		return fmt.Errorf("unlock stakes: %w", err)
	}
	return nil
}

// leaveStakeTx handles the stake of a member leaving partyID. A locked stake pays the
// early-leave penalty when slash is true; whatever remains starts unlocking.
func (s *AccountabilityService) leaveStakeTx(tx *gorm.DB, partyID, userID uint, pool rules.PoolType, slash bool, now time.Time) (*SlashOutcome, error) {
	var stake models.MemberStake
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("party_id = ? AND user_id = ?", partyID, userID).First(&stake).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var outcome *SlashOutcome
	switch stake.Status {
	case models.StakeLocked:
		if slash && now.Before(stake.LockedUntil) {
			if outcome, err = s.slashTx(tx, &stake, pool, rules.SlashEarlyLeave, now); err != nil {
				return nil, err
			}
		}
	case models.StakeActive:
	default:
		return nil, nil
	}
	unlocks := now.Add(unstakeDelay)
	if err := tx.Model(&models.MemberStake{}).Where("id = ?", stake.ID).Updates(map[string]interface{}{
		"status":     models.StakeUnlocking,
		"unlocks_at": unlocks,
	}).Error; err != nil {
		return nil, err
	}
	return outcome, nil
}

func lockOwnStake(tx *gorm.DB, stakeID, userID uint, out *models.MemberStake) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(out, stakeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStakeNotFound
		}
		return err
	}
	if out.UserID != userID {
		return ErrStakeNotFound
	}
	return nil
}

// debitBalance takes amount from the user only when the balance covers it.
func debitBalance(tx *gorm.DB, userID uint, amount int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND danz_balance >= ?", userID, amount).
		Update("danz_balance", gorm.Expr("danz_balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func ensureTreasury(tx *gorm.DB, partyID uint) (*models.PartyTreasury, error) {
	var t models.PartyTreasury
	err := tx.Where(models.PartyTreasury{PartyID: partyID}).FirstOrCreate(&t).Error
	return &t, err
}
