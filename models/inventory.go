package models

import "time"

// InventoryItem is one catalog item held by a user. Quantity counts unused units;
// UsesRemaining counts slash-protection charges.
type InventoryItem struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;uniqueIndex:idx_inventory_user_item" json:"user_id"`
	ItemID        string     `gorm:"size:64;not null;uniqueIndex:idx_inventory_user_item" json:"item_id"`
	Quantity      int        `gorm:"not null;default:0" json:"quantity"`
	UsesRemaining int        `gorm:"not null;default:0" json:"uses_remaining"`
	IsActive      bool       `gorm:"not null;default:false" json:"is_active"`
	ActivatedAt   *time.Time `json:"activated_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	TotalSpent    int64      `gorm:"not null;default:0" json:"total_spent"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
