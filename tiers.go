package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Tier is a named permission level attached to an account.
type Tier = string

const (
	// TierReader can view resources (default on registration).
	TierReader Tier = "reader"
	// TierEditor can view and edit resources.
	TierEditor Tier = "editor"
	// TierAdmin can operate on accounts other than its own.
	TierAdmin Tier = "admin"
)

var tierHierarchy = map[Tier]int{
	TierReader: 0,
	TierEditor: 1,
	TierAdmin:  2,
}

// IsValidTier checks if the name is one of the predefined tiers.
func IsValidTier(name string) bool {
	_, ok := tierHierarchy[name]
	return ok
}

// ParseTier safely parses a string into a Tier.
func ParseTier(name string) (Tier, bool) {
	return Tier(name), IsValidTier(name)
}

// TierAtLeast checks if tier meets the minimum required level. Unknown tiers
// never satisfy any requirement.
func TierAtLeast(tier, min Tier) bool {
	current, ok := tierHierarchy[tier]
	if !ok {
		return false
	}
	required, ok := tierHierarchy[min]
	if !ok {
		return false
	}
	return current >= required
}

// AllTiers returns the predefined tiers in hierarchical order.
func AllTiers() []Tier {
	return []Tier{TierReader, TierEditor, TierAdmin}
}

// TierStore resolves tier reference data.
type TierStore interface {
	GetTierByName(ctx context.Context, name string) (*PermissionTier, error)
}

// TierResolver maps tier names to stable identifiers and decides tier
// precedence for privileged operations.
type TierResolver struct {
	store TierStore
}

// NewTierResolver returns a resolver backed by the given store.
func NewTierResolver(store TierStore) *TierResolver {
	return &TierResolver{store: store}
}

// IDForTier resolves the stable id for a tier name. Unknown names are a
// validation error, never a silent fallback.
func (r *TierResolver) IDForTier(ctx context.Context, name string) (int64, error) {
	if !IsValidTier(name) {
		return 0, goerrors.New("unknown permission tier", goerrors.CategoryValidation).
			WithTextCode(TextCodeUnknownTier).
			WithMetadata(map[string]any{"tier": name})
	}

	tier, err := r.store.GetTierByName(ctx, name)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return 0, goerrors.New("unknown permission tier", goerrors.CategoryValidation).
				WithTextCode(TextCodeUnknownTier).
				WithMetadata(map[string]any{"tier": name})
		}
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve permission tier")
	}

	return tier.ID, nil
}

// IsTier reports whether the claims carry at least the given tier. The
// account snapshot must be active: a suspended admin is not an admin for
// gate purposes.
func (r *TierResolver) IsTier(claims *SessionClaims, name Tier) bool {
	if claims == nil {
		return false
	}
	if claims.AccountState != StateActive {
		return false
	}
	return TierAtLeast(claims.TierName, name)
}

// IsAdmin is the predicate used for self-vs-other authorization.
func (r *TierResolver) IsAdmin(claims *SessionClaims) bool {
	return r.IsTier(claims, TierAdmin)
}
