package accounts

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Gate is the authorization check run before a protected operation
// executes: bearer extraction, token validation, and the self-vs-admin
// decision.
type Gate struct {
	validator  *TokenValidator
	resolver   *TierResolver
	authScheme string
	contextKey string
	logger     Logger
}

// NewGate builds the gate from a token validator and tier resolver.
func NewGate(validator *TokenValidator, resolver *TierResolver, cfg Config) *Gate {
	scheme := "Bearer"
	key := "session"
	if cfg != nil {
		if cfg.GetAuthScheme() != "" {
			scheme = cfg.GetAuthScheme()
		}
		if cfg.GetContextKey() != "" {
			key = cfg.GetContextKey()
		}
	}
	return &Gate{
		validator:  validator,
		resolver:   resolver,
		authScheme: scheme,
		contextKey: key,
		logger:     defLogger{},
	}
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// RequireSession rejects requests without a valid bearer token and stores
// the decoded claims in the request locals.
func (g *Gate) RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := g.bearerToken(c)
		if !ok {
			return respondError(c, ErrTokenMissing)
		}

		claims, err := g.validator.Validate(raw)
		if err != nil {
			return respondError(c, ErrUnauthorized)
		}

		g.storeSession(c, claims)
		return c.Next()
	}
}

// OptionalSession decodes a bearer token when one is present but lets
// anonymous requests through. Used by registration, where an admin caller
// may assign a tier.
func (g *Gate) OptionalSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw, ok := g.bearerToken(c); ok {
			if claims, err := g.validator.Validate(raw); err == nil {
				g.storeSession(c, claims)
			}
		}
		return c.Next()
	}
}

// storeSession keeps the decoded claims in two places: the fiber locals for
// the controller, and the request's user context for code that only sees a
// context.Context.
func (g *Gate) storeSession(c *fiber.Ctx, claims *SessionClaims) {
	c.Locals(g.contextKey, claims)
	c.SetUserContext(WithClaimsContext(c.UserContext(), claims))
}

// RequireTier runs after RequireSession and rejects callers below the given
// tier. A suspended account never satisfies a tier requirement.
func (g *Gate) RequireTier(name Tier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := g.SessionClaims(c)
		if claims == nil {
			return respondError(c, ErrUnauthorized)
		}
		if !g.resolver.IsTier(claims, name) {
			return respondError(c, ErrForbidden)
		}
		return c.Next()
	}
}

// SessionClaims returns the decoded claims stored by RequireSession, or nil.
func (g *Gate) SessionClaims(c *fiber.Ctx) *SessionClaims {
	claims, _ := c.Locals(g.contextKey).(*SessionClaims)
	return claims
}

// Authorize decides whether the caller may act on the target subject. An
// absent target (zero id) defaults to the caller itself, which always
// passes; acting on another account requires the admin predicate.
func (g *Gate) Authorize(claims *SessionClaims, targetID int64, requiredTier Tier) error {
	if claims == nil {
		return ErrUnauthorized
	}

	if requiredTier != "" && !g.resolver.IsTier(claims, requiredTier) {
		return ErrForbidden
	}

	if targetID == 0 || targetID == claims.UserID() {
		return nil
	}

	if !g.resolver.IsAdmin(claims) {
		return ErrForbidden
	}

	return nil
}

func (g *Gate) bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", false
	}

	if g.authScheme != "" {
		if !strings.HasPrefix(header, g.authScheme) {
			return "", false
		}
		header = strings.TrimPrefix(header, g.authScheme)
	}

	token := strings.TrimSpace(header)
	if token == "" {
		return "", false
	}

	return token, true
}
