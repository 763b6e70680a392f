package services

import "gorm.io/gorm"

// Registry wires every service against one database and option set.
type Registry struct {
	Checkins       *CheckinService
	Accountability *AccountabilityService
	Parties        *PartyService
	Shop           *ShopService
	Encouragement  *EncouragementService
	Linking        *LinkingService
}

// NewRegistry builds all services.
func NewRegistry(db *gorm.DB, opts ...Option) *Registry {
	acct := NewAccountabilityService(db, opts...)
	return &Registry{
		Checkins:       NewCheckinService(db, opts...),
		Accountability: acct,
		Parties:        NewPartyService(db, acct, opts...),
		Shop:           NewShopService(db, opts...),
		Encouragement:  NewEncouragementService(db, opts...),
		Linking:        NewLinkingService(db, opts...),
	}
}
