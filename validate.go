package accounts

import (
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{4,25}$`)

// ValidUsernameShape reports whether the value looks like a username.
func ValidUsernameShape(v string) bool {
	return usernameRe.MatchString(v)
}

// ValidEmailShape reports whether the value looks like an email address.
func ValidEmailShape(v string) bool {
	return is.Email.Validate(v) == nil
}

// ValidIdentifierShape accepts either a username or an email shape. Used by
// the credential verifier to fail fast before any store lookup.
func ValidIdentifierShape(v string) bool {
	return ValidUsernameShape(v) || ValidEmailShape(v)
}

// ValidatePasswordStrength enforces the password policy: minimum length 8,
// at least one lowercase letter, one uppercase letter, one digit and one
// symbol, and no whitespace.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return ErrWeakPassword
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		return ErrWeakPassword
	}

	return nil
}

// StrongPassword is the ozzo rule form of ValidatePasswordStrength, so
// request payloads can declare it inline.
func StrongPassword(value any) error {
	s, _ := value.(string)
	return ValidatePasswordStrength(s)
}

// UsernameRule is the declarative username constraint shared by payload schemas.
var UsernameRule = []validation.Rule{
	validation.Required,
	validation.Length(4, 25),
	validation.Match(usernameRe),
}

// FormatValidationErrors flattens ozzo validation errors into a field->message map.
func FormatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
