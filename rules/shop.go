package rules

// ItemCategory groups shop items.
type ItemCategory string

const (
	CategoryProtection ItemCategory = "protection"
	CategoryBoost      ItemCategory = "boost"
	CategoryUtility    ItemCategory = "utility"
)

// ItemRarity is cosmetic metadata for the catalog.
type ItemRarity string

const (
	RarityCommon    ItemRarity = "common"
	RarityUncommon  ItemRarity = "uncommon"
	RarityRare      ItemRarity = "rare"
	RarityEpic      ItemRarity = "epic"
	RarityLegendary ItemRarity = "legendary"
)

// Effect types.
const (
	EffectSlashProtection    = "slash_protection"
	EffectTimedImmunity      = "timed_immunity"
	EffectWeekendProtection  = "weekend_protection"
	EffectVacationProtection = "vacation_protection"
	EffectXPMultiplier       = "xp_multiplier"
	EffectStreakRestore      = "streak_restore"
	EffectPartyXPBoost       = "party_xp_boost"
	EffectExtraMessages      = "extra_messages"
	EffectMemberSlots        = "member_slots"
	EffectEarlyNotifications = "early_notifications"
)

// ItemEffect describes what an item does. Boolean effects use Value 1.
type ItemEffect struct {
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// ShopItem is a catalog entry priced in DANZ.
type ShopItem struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Emoji         string       `json:"emoji"`
	Category      ItemCategory `json:"category"`
	Rarity        ItemRarity   `json:"rarity"`
	Price         int64        `json:"price"`
	DurationHours int          `json:"duration_hours,omitempty"`
	MaxStack      int          `json:"max_stack"`
	Effect        ItemEffect   `json:"effect"`
}

// IsChargeBased reports whether the item is consumed one charge per blocked slash instead of activated.
func (i ShopItem) IsChargeBased() bool {
	return i.Effect.Type == EffectSlashProtection
}

// IsProtection reports whether the item can block a slash while active.
func (i ShopItem) IsProtection() bool {
	return i.Category == CategoryProtection
}

// Activatable reports whether the server applies the item's effect on activation.
// XP boosts and streak restores are catalogued only.
func (i ShopItem) Activatable() bool {
	switch i.Effect.Type {
	case EffectTimedImmunity, EffectWeekendProtection, EffectVacationProtection,
		EffectExtraMessages, EffectMemberSlots, EffectEarlyNotifications:
		return true
	}
	return false
}

var ShopItems = []ShopItem{
	// protection
	{ID: "danz_dodge_single", Name: "Danz Dodge", Emoji: "🛡️", Category: CategoryProtection, Rarity: RarityCommon,
		Description: "Protects your stake from ONE slash.", Price: 25, MaxStack: 5,
		Effect: ItemEffect{Type: EffectSlashProtection, Value: 1, Description: "Blocks 1 slash event"}},
	{ID: "danz_dodge_triple", Name: "Triple Dodge Pack", Emoji: "🛡️🛡️🛡️", Category: CategoryProtection, Rarity: RarityUncommon,
		Description: "A pack of 3 Danz Dodges at a discount.", Price: 60, MaxStack: 3,
		Effect: ItemEffect{Type: EffectSlashProtection, Value: 3, Description: "Blocks 3 slash events"}},
	{ID: "immunity_shield", Name: "Immunity Shield", Emoji: "✨🛡️✨", Category: CategoryProtection, Rarity: RarityRare,
		Description: "24-hour protection from all slash types.", Price: 100, DurationHours: 24, MaxStack: 2,
		Effect: ItemEffect{Type: EffectTimedImmunity, Value: 24, Description: "24h immunity from all slashing"}},
	{ID: "weekend_pass", Name: "Weekend Pass", Emoji: "🎉🛡️", Category: CategoryProtection, Rarity: RarityUncommon,
		Description: "Protection for Saturday and Sunday.", Price: 40, DurationHours: 48, MaxStack: 4,
		Effect: ItemEffect{Type: EffectWeekendProtection, Value: 1, Description: "Weekend slash protection"}},
	{ID: "vacation_mode", Name: "Vacation Mode", Emoji: "🏖️", Category: CategoryProtection, Rarity: RarityEpic,
		Description: "7-day protection for when life happens.", Price: 200, DurationHours: 168, MaxStack: 1,
		Effect: ItemEffect{Type: EffectVacationProtection, Value: 7, Description: "7-day complete protection"}},

	// boost
	{ID: "xp_boost_small", Name: "XP Spark", Emoji: "⚡", Category: CategoryBoost, Rarity: RarityCommon,
		Description: "+25% XP for your next 3 check-ins.", Price: 15, MaxStack: 10,
		Effect: ItemEffect{Type: EffectXPMultiplier, Value: 1.25, Description: "+25% XP for 3 check-ins"}},
	{ID: "xp_boost_medium", Name: "XP Surge", Emoji: "⚡⚡", Category: CategoryBoost, Rarity: RarityUncommon,
		Description: "+50% XP for 24 hours.", Price: 50, DurationHours: 24, MaxStack: 5,
		Effect: ItemEffect{Type: EffectXPMultiplier, Value: 1.5, Description: "+50% XP for 24h"}},
	{ID: "xp_boost_large", Name: "XP Storm", Emoji: "🌩️", Category: CategoryBoost, Rarity: RarityRare,
		Description: "Double XP for 48 hours.", Price: 150, DurationHours: 48, MaxStack: 2,
		Effect: ItemEffect{Type: EffectXPMultiplier, Value: 2.0, Description: "2x XP for 48h"}},
	{ID: "streak_saver", Name: "Streak Saver", Emoji: "🔥💾", Category: CategoryBoost, Rarity: RarityEpic,
		Description: "Restores a broken streak. One-time use.", Price: 100, MaxStack: 1,
		Effect: ItemEffect{Type: EffectStreakRestore, Value: 1, Description: "Restores broken streak"}},
	{ID: "party_boost", Name: "Party Amplifier", Emoji: "📢", Category: CategoryBoost, Rarity: RarityRare,
		Description: "Boosts party XP by 10% for 24h.", Price: 200, DurationHours: 24, MaxStack: 1,
		Effect: ItemEffect{Type: EffectPartyXPBoost, Value: 1.10, Description: "+10% party XP for 24h"}},

	// utility
	{ID: "extra_encourage", Name: "Megaphone", Emoji: "📣", Category: CategoryUtility, Rarity: RarityCommon,
		Description: "Send 5 extra encouragement messages today.", Price: 10, DurationHours: 24, MaxStack: 3,
		Effect: ItemEffect{Type: EffectExtraMessages, Value: 5, Description: "+5 encouragement messages"}},
	{ID: "slot_expansion", Name: "Party Expansion", Emoji: "📈", Category: CategoryUtility, Rarity: RarityRare,
		Description: "Add 5 member slots to your party.", Price: 150, MaxStack: 3,
		Effect: ItemEffect{Type: EffectMemberSlots, Value: 5, Description: "+5 party member slots"}},
	{ID: "early_warning", Name: "Early Warning System", Emoji: "⏰", Category: CategoryUtility, Rarity: RarityUncommon,
		Description: "Get notified 2 hours earlier when members are at risk.", Price: 30, DurationHours: 168, MaxStack: 4,
		Effect: ItemEffect{Type: EffectEarlyNotifications, Value: 2, Description: "2h earlier risk alerts"}},
}

// ShopItemByID finds a catalog item.
func ShopItemByID(id string) (ShopItem, bool) {
	for _, it := range ShopItems {
		if it.ID == id {
			return it, true
		}
	}
	return ShopItem{}, false
}

// ItemsByCategory filters the catalog; an empty category returns everything.
func ItemsByCategory(c ItemCategory) []ShopItem {
	if c == "" {
		return ShopItems
	}
	out := make([]ShopItem, 0, len(ShopItems))
	for _, it := range ShopItems {
		if it.Category == c {
			out = append(out, it)
		}
	}
	return out
}
