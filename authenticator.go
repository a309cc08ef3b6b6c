package accounts

import (
	"context"
)

// Authenticator drives the login path: credential verification feeding
// session-token issuance.
type Authenticator struct {
	verifier *CredentialVerifier
	issuer   *TokenIssuer
	logger   Logger
}

// NewAuthenticator wires a verifier and a token issuer together.
func NewAuthenticator(verifier *CredentialVerifier, issuer *TokenIssuer) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		issuer:   issuer,
		logger:   defLogger{},
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Login verifies the credentials and mints a session token carrying the
// identity and permission-tier claims.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := a.verifier.Verify(ctx, identifier, password)
	if err != nil {
		a.logger.Debug("login rejected for %q: %v", identifier, err)
		return "", err
	}

	token, err := a.issuer.Issue(identity)
	if err != nil {
		a.logger.Error("failed to issue session token for user %d: %v", identity.ID(), err)
		return "", err
	}

	return token, nil
}
