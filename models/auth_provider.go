package models

import (
	"time"

	"gorm.io/datatypes"
)

// Provider names accepted for linked identities.
const (
	ProviderFarcaster = "farcaster"
	ProviderWallet    = "wallet"
	ProviderEmail     = "email"
	ProviderPrivy     = "privy"
)

// ProviderMetadata is the profile snapshot taken when an identity was linked.
type ProviderMetadata struct {
	Username          string   `json:"username,omitempty"`
	DisplayName       string   `json:"display_name,omitempty"`
	PfpURL            string   `json:"pfp_url,omitempty"`
	VerifiedAddresses []string `json:"verified_addresses,omitempty"`
}

// AuthProvider links an external identity to a user. (provider, provider_id) is globally unique.
type AuthProvider struct {
	ID         uint                                 `gorm:"primaryKey" json:"id"`
	UserID     uint                                 `gorm:"index;not null" json:"user_id"`
	Provider   string                               `gorm:"size:32;not null;uniqueIndex:idx_provider_identity" json:"provider"`
	ProviderID string                               `gorm:"size:191;not null;uniqueIndex:idx_provider_identity" json:"provider_id"`
	IsPrimary  bool                                 `gorm:"not null;default:false" json:"is_primary"`
	Metadata   datatypes.JSONType[ProviderMetadata] `json:"metadata"`
	LinkedAt   time.Time                            `json:"linked_at"`
}
