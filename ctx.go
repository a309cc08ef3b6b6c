package accounts

import (
	"context"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the SessionClaims in the given context
func WithClaimsContext(r context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the SessionClaims from the standard context
func GetClaims(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*SessionClaims)
	return raw, ok
}

// HasTier is a convenience predicate over the claims in the context. The
// account snapshot must be active for any tier to hold.
func HasTier(ctx context.Context, tier Tier) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	if claims.AccountState != StateActive {
		return false
	}
	return TierAtLeast(claims.TierName, tier)
}

// requesterIsAdmin resolves the admin predicate for a command. Explicit
// claims win; a command invoked without them falls back to the session the
// transport stored in the context.
func requesterIsAdmin(ctx context.Context, resolver *TierResolver, claims *SessionClaims) bool {
	if claims != nil {
		return resolver != nil && resolver.IsAdmin(claims)
	}
	return HasTier(ctx, TierAdmin)
}
