package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the services. Controllers map them to HTTP statuses.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")

	ErrUserNotFound     = errors.New("user not found")
	ErrFIDMismatch      = errors.New("fid does not match the signed-in user")
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	ErrCheckinInFlight  = errors.New("check-in already in progress")

	ErrPartyNotFound  = errors.New("party not found")
	ErrAlreadyInParty = errors.New("already in a party")
	ErrNotInParty     = errors.New("not a member of this party")
	ErrPartyFull      = errors.New("party is full")
	ErrInviteRequired = errors.New("party is private, an invite is required")

	ErrStakeNotFound       = errors.New("stake not found")
	ErrStakeLocked         = errors.New("stake is still locked")
	ErrStakeState          = errors.New("stake is not in a valid state for this action")
	ErrBelowMinStake       = errors.New("amount is below the pool minimum stake")
	ErrInsufficientBalance = errors.New("insufficient DANZ balance")

	ErrItemNotFound       = errors.New("item not found")
	ErrMaxStack           = errors.New("item stack limit reached")
	ErrItemNotActivatable = errors.New("item cannot be activated")
	ErrItemDepleted       = errors.New("no unused units of this item")
	ErrNotPartyLeader     = errors.New("only a party leader can use this item")

	ErrCooldown        = errors.New("encouragement cooldown active")
	ErrMessageNotFound = errors.New("message not found")

	ErrLinkTokenInvalid    = errors.New("linking token is invalid")
	ErrLinkTokenExpired    = errors.New("linking token has expired")
	ErrIdentityTaken       = errors.New("identity already linked to another account")
	ErrProviderNotFound    = errors.New("provider not linked")
	ErrCannotUnlinkPrimary = errors.New("primary identity cannot be unlinked")
)

var domainErrors = []error{
	ErrInvalidInput, ErrForbidden,
	ErrUserNotFound, ErrFIDMismatch, ErrAlreadyCheckedIn, ErrCheckinInFlight,
	ErrPartyNotFound, ErrAlreadyInParty, ErrNotInParty, ErrPartyFull, ErrInviteRequired,
	ErrStakeNotFound, ErrStakeLocked, ErrStakeState, ErrBelowMinStake, ErrInsufficientBalance,
	ErrItemNotFound, ErrMaxStack, ErrItemNotActivatable, ErrItemDepleted, ErrNotPartyLeader,
	ErrCooldown, ErrMessageNotFound,
	ErrLinkTokenInvalid, ErrLinkTokenExpired, ErrIdentityTaken, ErrProviderNotFound, ErrCannotUnlinkPrimary,
}

// IsDomainError reports whether err carries one of the sentinels above.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapStore passes sentinel errors through and labels everything else as a store failure.
func wrapStore(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
