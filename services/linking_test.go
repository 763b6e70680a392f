package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danz-app/danz/models"
)

const testWallet = "0xAbC0000000000000000000000000000000000001"

func TestLinkToken_WalletLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1, "amy")

	token, row, err := f.links.GenerateLinkToken(ctx, u.ID, models.ProviderWallet)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, row.ID+"."))
	assert.NotContains(t, row.SecretHash, strings.TrimPrefix(token, row.ID+"."))
	assert.WithinDuration(t, f.clock.Now().Add(15*time.Minute), row.ExpiresAt, time.Second)

	linked, err := f.links.ValidateLinkToken(ctx, token, models.ProviderWallet, testWallet, models.ProviderMetadata{Username: "amy.eth"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, linked.UserID)
	assert.False(t, linked.IsPrimary)
	assert.Equal(t, "amy.eth", linked.Metadata.Data().Username)

	_, err = f.links.ValidateLinkToken(ctx, token, models.ProviderWallet, testWallet, models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrLinkTokenInvalid)

	providers, err := f.links.Providers(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, models.ProviderFarcaster, providers[0].Provider)
	assert.True(t, providers[0].IsPrimary)
}

func TestLinkToken_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1, "amy")

	_, _, err := f.links.GenerateLinkToken(ctx, u.ID, "myspace")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = f.links.GenerateLinkToken(ctx, 999, models.ProviderWallet)
	assert.ErrorIs(t, err, ErrUserNotFound)

	token, row, err := f.links.GenerateLinkToken(ctx, u.ID, models.ProviderWallet)
	require.NoError(t, err)

	_, err = f.links.ValidateLinkToken(ctx, row.ID+".wrong", models.ProviderWallet, testWallet, models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrLinkTokenInvalid)
	_, err = f.links.ValidateLinkToken(ctx, token, models.ProviderEmail, "a@b.co", models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrLinkTokenInvalid)
	_, err = f.links.ValidateLinkToken(ctx, "garbage", models.ProviderWallet, testWallet, models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrLinkTokenInvalid)
	_, err = f.links.ValidateLinkToken(ctx, token, models.ProviderWallet, "  ", models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.clock.Advance(16 * time.Minute)
	_, err = f.links.ValidateLinkToken(ctx, token, models.ProviderWallet, testWallet, models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrLinkTokenExpired)
}

func TestLinkToken_IdentityTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, 1, "amy")
	b := f.user(t, 2, "bob")

	tokA, _, err := f.links.GenerateLinkToken(ctx, a.ID, models.ProviderEmail)
	require.NoError(t, err)
	_, err = f.links.ValidateLinkToken(ctx, tokA, models.ProviderEmail, "Amy@Example.com", models.ProviderMetadata{})
	require.NoError(t, err)

	tokB, _, err := f.links.GenerateLinkToken(ctx, b.ID, models.ProviderEmail)
	require.NoError(t, err)
	_, err = f.links.ValidateLinkToken(ctx, tokB, models.ProviderEmail, "amy@example.com", models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrIdentityTaken)

	// the owner linking it again is a no-op
	again, _, err := f.links.GenerateLinkToken(ctx, a.ID, models.ProviderEmail)
	require.NoError(t, err)
	linked, err := f.links.ValidateLinkToken(ctx, again, models.ProviderEmail, "AMY@example.com", models.ProviderMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "amy@example.com", linked.ProviderID)

	// a second Farcaster identity is refused
	fc, _, err := f.links.GenerateLinkToken(ctx, a.ID, models.ProviderFarcaster)
	require.NoError(t, err)
	_, err = f.links.ValidateLinkToken(ctx, fc, models.ProviderFarcaster, "77", models.ProviderMetadata{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1, "amy")
	token, _, err := f.links.GenerateLinkToken(ctx, u.ID, models.ProviderWallet)
	require.NoError(t, err)
	_, err = f.links.ValidateLinkToken(ctx, token, models.ProviderWallet, testWallet, models.ProviderMetadata{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.links.Unlink(ctx, u.ID, models.ProviderFarcaster, "1"), ErrCannotUnlinkPrimary)
	require.NoError(t, f.links.Unlink(ctx, u.ID, models.ProviderWallet, testWallet))
	assert.ErrorIs(t, f.links.Unlink(ctx, u.ID, models.ProviderWallet, testWallet), ErrProviderNotFound)

	providers, err := f.links.Providers(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, providers, 1)
}
