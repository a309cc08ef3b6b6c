package accounts_test

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"

	accounts "github.com/rallende/go-accounts"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, accounts.HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, accounts.HTTPStatus(accounts.ErrInvalidCredentials))
	assert.Equal(t, http.StatusUnauthorized, accounts.HTTPStatus(accounts.ErrUnauthorized))
	assert.Equal(t, http.StatusForbidden, accounts.HTTPStatus(accounts.ErrForbidden))
	assert.Equal(t, http.StatusNotFound, accounts.HTTPStatus(accounts.ErrAccountNotFound))
	assert.Equal(t, http.StatusBadGateway, accounts.HTTPStatus(accounts.ErrDeliveryFailed))
	assert.Equal(t, http.StatusInternalServerError, accounts.HTTPStatus(errors.New("boom")))
}

func TestPublicMessageMasksInternalDetail(t *testing.T) {
	raw := goerrors.Wrap(errors.New("pq: connection refused"), goerrors.CategoryInternal, "query users").
		WithCode(goerrors.CodeInternal)

	msg := accounts.PublicMessage(raw)
	assert.NotContains(t, msg, "connection refused")
	assert.NotContains(t, msg, "query users")
	assert.Contains(t, msg, "unexpected server error")

	assert.Contains(t, accounts.PublicMessage(errors.New("plain failure")), "unexpected server error")
}

func TestPublicMessageDeliveryFailureIsExplicit(t *testing.T) {
	msg := accounts.PublicMessage(accounts.ErrDeliveryFailed)
	assert.Contains(t, msg, "recovery email")
}

func TestPublicMessagePassesBoundaryErrors(t *testing.T) {
	assert.Equal(t, "invalid login data", accounts.PublicMessage(accounts.ErrInvalidCredentials))
	assert.Equal(t, "account not found", accounts.PublicMessage(accounts.ErrAccountNotFound))
}
