package accounts

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsAllDigits(t *testing.T) {
	assert.True(t, isAllDigits("123"))
	assert.True(t, isAllDigits("0"))
	assert.False(t, isAllDigits(""))
	assert.False(t, isAllDigits("12a"))
	assert.False(t, isAllDigits("pepe"))
	assert.False(t, isAllDigits("-1"))
}

func TestWrapUserErrDuplicateUsername(t *testing.T) {
	err := wrapUserErr(errors.New("UNIQUE constraint failed: users.username"))

	var richErr *goerrors.Error
	assert.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	assert.Equal(t, TextCodeDuplicateIdentifier, richErr.TextCode)
	assert.Equal(t, "username already registered", richErr.Message)
	assert.Equal(t, 400, HTTPStatus(err))
}

func TestWrapUserErrDuplicateEmailPostgres(t *testing.T) {
	err := wrapUserErr(errors.New(`duplicate key value violates unique constraint "users_email_key"`))

	var richErr *goerrors.Error
	assert.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "e-mail already registered", richErr.Message)
}

func TestWrapUserErrUnknownIsInternal(t *testing.T) {
	err := wrapUserErr(errors.New("disk on fire"))

	var richErr *goerrors.Error
	assert.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	// Internal detail is masked at the boundary.
	assert.NotContains(t, PublicMessage(err), "disk on fire")
}
