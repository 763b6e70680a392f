package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/rules"
	"github.com/danz-app/danz/utils"
)

// InventoryEntry is an owned item joined with its catalog entry.
type InventoryEntry struct {
	models.InventoryItem
	Item rules.ShopItem `json:"item"`
}

// ShopService sells catalog items for DANZ and applies activated effects.
type ShopService struct {
	db   *gorm.DB
	opts Options
}

// NewShopService creates a shop service.
func NewShopService(db *gorm.DB, opts ...Option) *ShopService {
	return &ShopService{db: db, opts: newOptions(opts)}
}

// Catalog returns the items of a category, or all of them.
func (s *ShopService) Catalog(category string) []rules.ShopItem {
	return rules.ItemsByCategory(rules.ItemCategory(category))
}

// held is how many units of item the row represents for stack limits.
func held(inv *models.InventoryItem, item rules.ShopItem) int {
	if item.IsChargeBased() && item.Effect.Value > 0 {
		return int(math.Ceil(float64(inv.UsesRemaining) / item.Effect.Value))
	}
	return inv.Quantity
}

// Purchase buys qty units of itemID. The balance is debited only if it covers the whole price.
func (s *ShopService) Purchase(ctx context.Context, userID uint, itemID string, qty int) (*InventoryEntry, error) {
	item, ok := rules.ShopItemByID(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	now := s.opts.now()
	cost := item.Price * int64(qty)
	charges := 0
	if item.IsChargeBased() {
		charges = int(item.Effect.Value) * qty
	}

	var inv models.InventoryItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND item_id = ?", userID, itemID).First(&inv).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		current := 0
		if exists {
			current = held(&inv, item)
		}
		if item.MaxStack > 0 && current+qty > item.MaxStack {
			return ErrMaxStack
		}
		if err := debitBalance(tx, userID, cost); err != nil {
			return err
		}
		if !exists {
			inv = models.InventoryItem{
				UserID:        userID,
				ItemID:        itemID,
				Quantity:      qty,
				UsesRemaining: charges,
				TotalSpent:    cost,
				PurchasedAt:   now,
			}
			return tx.Create(&inv).Error
		}
		inv.Quantity += qty
		inv.UsesRemaining += charges
		inv.TotalSpent += cost
		inv.PurchasedAt = now
		return tx.Model(&models.InventoryItem{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
			"quantity":       gorm.Expr("quantity + ?", qty),
			"uses_remaining": gorm.Expr("uses_remaining + ?", charges),
			"total_spent":    gorm.Expr("total_spent + ?", cost),
			"purchased_at":   now,
		}).Error
	})
	if err != nil {
		return nil, wrapStore("purchase", err)
	}
	utils.Sugar.Infow("item purchased", "user_id", userID, "item", itemID, "qty", qty, "cost", cost)
	return &InventoryEntry{InventoryItem: inv, Item: item}, nil
}

// Activate uses one unit of an owned item. Timed items stack their duration onto a running activation.
func (s *ShopService) Activate(ctx context.Context, userID, inventoryID uint) (*InventoryEntry, error) {
	now := s.opts.now()
	var inv models.InventoryItem
	var item rules.ShopItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, inventoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if inv.UserID != userID {
			return ErrItemNotFound
		}
		var ok bool
		if item, ok = rules.ShopItemByID(inv.ItemID); !ok {
			return ErrItemNotFound
		}
		if !item.Activatable() {
			return ErrItemNotActivatable
		}
		if inv.Quantity <= 0 {
			return ErrItemDepleted
		}

		if item.Effect.Type == rules.EffectMemberSlots {
			var member models.PartyMember
			err := tx.Joins("JOIN parties ON parties.id = party_members.party_id").
				Where("party_members.user_id = ? AND party_members.role = ? AND parties.status = ?",
					userID, models.RoleLeader, models.PartyStatusActive).
				First(&member).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotPartyLeader
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&models.Party{}).Where("id = ?", member.PartyID).
				Update("extra_slots", gorm.Expr("extra_slots + ?", int(item.Effect.Value))).Error; err != nil {
				return err
			}
		}

		inv.Quantity--
		inv.ActivatedAt = &now
		if item.DurationHours > 0 {
			start := now
			if inv.IsActive && inv.ExpiresAt != nil && inv.ExpiresAt.After(now) {
				start = *inv.ExpiresAt
			}
			expires := start.Add(time.Duration(item.DurationHours) * time.Hour)
			inv.IsActive = true
			inv.ExpiresAt = &expires
		}
		return tx.Model(&models.InventoryItem{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
			"quantity":     inv.Quantity,
			"activated_at": inv.ActivatedAt,
			"is_active":    inv.IsActive,
			"expires_at":   inv.ExpiresAt,
		}).Error
	})
	if err != nil {
		return nil, wrapStore("activate item", err)
	}
	if item.Effect.Type == rules.EffectMemberSlots {
		invalidatePartyCaches()
	}
	utils.Sugar.Infow("item activated", "user_id", userID, "item", inv.ItemID, "expires_at", inv.ExpiresAt)
	return &InventoryEntry{InventoryItem: inv, Item: item}, nil
}

// Inventory lists the user's items. Lapsed timed items are reported inactive.
func (s *ShopService) Inventory(ctx context.Context, userID uint) ([]InventoryEntry, error) {
	var rows []models.InventoryItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	now := s.opts.now()
	out := make([]InventoryEntry, 0, len(rows))
	for _, r := range rows {
		item, ok := rules.ShopItemByID(r.ItemID)
		if !ok {
			continue
		}
		if r.IsActive && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			r.IsActive = false
		}
		out = append(out, InventoryEntry{InventoryItem: r, Item: item})
	}
	return out, nil
}
