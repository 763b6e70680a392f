package models

// All returns every model for migration.
func All() []interface{} {
	return []interface{}{
		&User{}, &AuthProvider{}, &Checkin{}, &Party{}, &PartyMember{}, &PartyInvite{},
		&MemberStake{}, &PartyTreasury{}, &SlashEvent{}, &InventoryItem{},
		&EncouragementMessage{}, &LinkingToken{},
	}
}
