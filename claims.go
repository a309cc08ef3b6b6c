package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the single tagged claim-set carried by every session
// token. Every field the gate relies on is required and checked on decode;
// there is no loosely-shaped payload variant.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID          int64        `json:"uid"`
	Name         string       `json:"name,omitempty"`
	UserName     string       `json:"username,omitempty"`
	AccountState AccountState `json:"state"`
	TierName     string       `json:"tier"`
}

// UserID returns the token subject's account id.
func (c *SessionClaims) UserID() int64 {
	return c.UID
}

// Tier returns the permission tier snapshot embedded at issuance.
func (c *SessionClaims) Tier() string {
	return c.TierName
}

// Expires returns the embedded absolute expiry.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedTime returns the embedded issue timestamp.
func (c *SessionClaims) IssuedTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// validateDecoded enforces required fields after signature and expiry checks
// have passed. A token without a subject or tier is not a session.
func (c *SessionClaims) validateDecoded() error {
	if c.UID <= 0 {
		return goerrors.New("session claims are missing a subject", goerrors.CategoryAuth)
	}
	if c.TierName == "" {
		return goerrors.New("session claims are missing a tier", goerrors.CategoryAuth)
	}
	if c.AccountState == "" {
		return goerrors.New("session claims are missing an account state", goerrors.CategoryAuth)
	}
	if c.RegisteredClaims.ExpiresAt == nil {
		return goerrors.New("session claims are missing an expiry", goerrors.CategoryAuth)
	}
	return nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
