package accounts

import "time"

// SimpleConfig is a plain value implementation of Config.
type SimpleConfig struct {
	Issuer          string
	Audience        []string
	TokenExpiration time.Duration
	AuthScheme      string
	ContextKey      string
}

var _ Config = (*SimpleConfig)(nil)

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *SimpleConfig {
	return &SimpleConfig{
		Issuer:          "accounts",
		TokenExpiration: DefaultTokenLifetime,
		AuthScheme:      "Bearer",
		ContextKey:      "session",
	}
}

func (c *SimpleConfig) GetIssuer() string {
	return c.Issuer
}

func (c *SimpleConfig) GetAudience() []string {
	return c.Audience
}

func (c *SimpleConfig) GetTokenExpiration() time.Duration {
	if c.TokenExpiration <= 0 {
		return DefaultTokenLifetime
	}
	return c.TokenExpiration
}

func (c *SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c *SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "session"
	}
	return c.ContextKey
}
