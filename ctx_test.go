package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimsContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := GetClaims(ctx)
	assert.False(t, ok)

	claims := &SessionClaims{UID: 1, TierName: TierEditor, AccountState: StateActive}
	ctx = WithClaimsContext(ctx, claims)

	got, ok := GetClaims(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims, got)
}

func TestHasTier(t *testing.T) {
	ctx := context.Background()
	assert.False(t, HasTier(ctx, TierReader))

	active := WithClaimsContext(ctx, &SessionClaims{UID: 1, TierName: TierEditor, AccountState: StateActive})
	assert.True(t, HasTier(active, TierReader))
	assert.True(t, HasTier(active, TierEditor))
	assert.False(t, HasTier(active, TierAdmin))

	suspended := WithClaimsContext(ctx, &SessionClaims{UID: 1, TierName: TierAdmin, AccountState: StateSuspended})
	assert.False(t, HasTier(suspended, TierReader))
}

func TestRequesterIsAdmin(t *testing.T) {
	ctx := context.Background()
	resolver := NewTierResolver(nil)

	admin := &SessionClaims{UID: 1, TierName: TierAdmin, AccountState: StateActive}
	reader := &SessionClaims{UID: 2, TierName: TierReader, AccountState: StateActive}

	assert.True(t, requesterIsAdmin(ctx, resolver, admin))
	assert.False(t, requesterIsAdmin(ctx, resolver, reader))
	assert.False(t, requesterIsAdmin(ctx, nil, admin))

	// without explicit claims the session stored in the context decides
	assert.False(t, requesterIsAdmin(ctx, resolver, nil))
	assert.True(t, requesterIsAdmin(WithClaimsContext(ctx, admin), resolver, nil))
}
