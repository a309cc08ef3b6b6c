package accounts

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced alongside boundary errors.
const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeAccountNotActive     = "ACCOUNT_NOT_ACTIVE"
	TextCodeTokenMissing         = "TOKEN_MISSING"
	TextCodeUnauthorized         = "UNAUTHORIZED"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeRecoveryInvalid      = "RECOVERY_TOKEN_INVALID"
	TextCodeRecoveryExpired      = "RECOVERY_TOKEN_EXPIRED"
	TextCodeDeliveryFailed       = "DELIVERY_FAILED"
	TextCodeWeakPassword         = "WEAK_PASSWORD"
	TextCodeDuplicateIdentifier  = "DUPLICATE_IDENTIFIER"
	TextCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	TextCodePasswordMismatch     = "PASSWORD_MISMATCH"
	TextCodeUnknownTier          = "UNKNOWN_TIER"
)

// ErrInvalidCredentials is the single public-facing login failure. Lookup
// misses and password mismatches both collapse into it so callers cannot
// enumerate usernames; the audit trail keeps the distinction.
var ErrInvalidCredentials = goerrors.New("invalid login data", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotActive rejects credential-correct logins on non-active accounts.
var ErrAccountNotActive = goerrors.New("account is not active, contact an administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotActive).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenMissing is returned when a protected route gets no bearer token.
var ErrTokenMissing = goerrors.New("missing authentication token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized covers every session-token failure: bad signature,
// malformed token, expired. Which check failed is never revealed.
var ErrUnauthorized = goerrors.New("invalid or expired session", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden rejects authenticated callers without the required tier.
var ErrForbidden = goerrors.New("access not authorized", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(http.StatusForbidden)

// ErrAccountNotFound is used only where enumeration risk is acceptable,
// e.g. profile lookup by id.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRecoveryTokenInvalid covers unknown and already-consumed recovery tokens.
var ErrRecoveryTokenInvalid = goerrors.New("invalid password recovery token", goerrors.CategoryValidation).
	WithTextCode(TextCodeRecoveryInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrRecoveryTokenExpired is returned past the redeem window; the slot is
// left as-is for the next issuance to overwrite.
var ErrRecoveryTokenExpired = goerrors.New("password recovery token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeRecoveryExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrDeliveryFailed reports a recovery email that could not be handed off.
var ErrDeliveryFailed = goerrors.New("could not deliver recovery email", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(http.StatusBadGateway)

// ErrWeakPassword rejects secrets that fail the strength policy.
var ErrWeakPassword = goerrors.New(
	"password needs at least 8 characters with a lowercase letter, an uppercase letter, a digit and a symbol, and no whitespace",
	goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordMismatch rejects a password change whose current secret is wrong.
var ErrPasswordMismatch = goerrors.New("current password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// HTTPStatus maps any error to a boundary status code. Rich errors carry
// their own code; everything else is an internal failure.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return int(richErr.Code)
	}

	return http.StatusInternalServerError
}

// PublicMessage returns the caller-safe message for an error. Internal error
// detail is never leaked to the caller.
func PublicMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryInternal, goerrors.CategoryOperation:
			if richErr.TextCode == TextCodeDeliveryFailed {
				return richErr.Message
			}
			return "an unexpected server error occurred, try again later"
		default:
			return richErr.Message
		}
	}
	return "an unexpected server error occurred, try again later"
}
