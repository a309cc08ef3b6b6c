package accounts

import (
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultTokenLifetime is the fixed session lifetime embedded at issuance.
const DefaultTokenLifetime = time.Hour

// TokenIssuer mints RS256-signed session tokens. It holds the private key
// and is the only component that does.
type TokenIssuer struct {
	key      *rsa.PrivateKey
	lifetime time.Duration
	issuer   string
	audience jwt.ClaimStrings
	logger   Logger
	now      func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A zero lifetime uses the default
// one-hour window.
func NewTokenIssuer(key *rsa.PrivateKey, lifetime time.Duration, issuer string, audience []string) *TokenIssuer {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &TokenIssuer{
		key:      key,
		lifetime: lifetime,
		issuer:   issuer,
		audience: jwt.ClaimStrings(audience),
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (ts *TokenIssuer) WithLogger(logger Logger) *TokenIssuer {
	if logger != nil {
		ts.logger = logger
	}
	return ts
}

// WithClock injects a custom clock, useful for tests.
func (ts *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// Issue mints a signed token for the identity. The claim-set snapshots the
// account state and tier at login time.
func (ts *TokenIssuer) Issue(identity Identity) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	now := ts.now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   strconv.FormatInt(identity.ID(), 10),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.lifetime)),
		},
		UID:          identity.ID(),
		Name:         identity.Name(),
		UserName:     identity.Username(),
		AccountState: identity.State(),
		TierName:     identity.Tier(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs an arbitrary session claim-set with the configured key.
func (ts *TokenIssuer) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// TokenValidator verifies session tokens with the public half of the signing
// keypair, so it can run in a different trust boundary than the issuer.
type TokenValidator struct {
	key      *rsa.PublicKey
	issuer   string
	audience []string
	logger   Logger
	now      func() time.Time
}

// NewTokenValidator creates a TokenValidator for the given public key.
func NewTokenValidator(key *rsa.PublicKey, issuer string, audience []string) *TokenValidator {
	return &TokenValidator{
		key:      key,
		issuer:   issuer,
		audience: audience,
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (tv *TokenValidator) WithLogger(logger Logger) *TokenValidator {
	if logger != nil {
		tv.logger = logger
	}
	return tv
}

// WithClock injects a custom clock, useful for tests.
func (tv *TokenValidator) WithClock(clock func() time.Time) *TokenValidator {
	if clock != nil {
		tv.now = clock
	}
	return tv
}

// Validate checks signature integrity and expiry, then the decoded claim
// shape. Every failure collapses into the same unauthorized error so the
// boundary never reveals which check failed; the detail goes to the log.
func (tv *TokenValidator) Validate(raw string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(tv.now),
	}
	if tv.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tv.issuer))
	}
	if len(tv.audience) == 1 {
		parserOptions = append(parserOptions, jwt.WithAudience(tv.audience[0]))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return tv.key, nil
	}, parserOptions...)

	if err != nil {
		tv.logger.Debug("session token rejected: %v", err)
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		tv.logger.Error("session token produced unexpected claim type")
		return nil, ErrUnauthorized
	}

	if len(tv.audience) > 1 && !audienceAllowed(claims.Audience, tv.audience) {
		tv.logger.Debug("session token rejected: audience mismatch")
		return nil, ErrUnauthorized
	}

	if err := claims.validateDecoded(); err != nil {
		tv.logger.Debug("session token claims incomplete: %v", err)
		return nil, ErrUnauthorized
	}

	return claims, nil
}

// audienceAllowed reports whether the token claims at least one of the
// audiences the validator accepts.
func audienceAllowed(got jwt.ClaimStrings, want []string) bool {
	for _, w := range want {
		for _, g := range got {
			if g == w {
				return true
			}
		}
	}
	return false
}
