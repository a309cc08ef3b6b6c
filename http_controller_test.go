package accounts_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	accounts "github.com/rallende/go-accounts"
)

var dbSeq int64

// mailbox captures outbound recovery tokens keyed by recipient e-mail.
type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *mailbox) mailer() accounts.MailerFunc {
	return func(ctx context.Context, user *accounts.User, token string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.tokens[user.Email] = token
		return nil
	}
}

func (m *mailbox) tokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type testServer struct {
	app   *fiber.App
	db    *bun.DB
	repo  accounts.RepositoryManager
	mails *mailbox
}

// newTestServer wires the full stack on an in-memory database, the same
// collaborators production uses, minus the listener.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:e2e%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	require.NoError(t, accounts.Bootstrap(ctx, db))

	repo := accounts.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	states := accounts.NewAccountStateMachine(repo.Users(),
		accounts.WithStateMachineActivitySink(repo.Activity()))

	verifier := accounts.NewCredentialVerifier(repo.Users()).
		WithActivitySink(repo.Activity()).
		WithStateMachine(states)

	key := testKey()
	issuer := accounts.NewTokenIssuer(key, accounts.DefaultTokenLifetime, "accounts-e2e", nil)
	validator := accounts.NewTokenValidator(&key.PublicKey, "accounts-e2e", nil)

	mails := &mailbox{tokens: map[string]string{}}
	recovery := accounts.NewRecoveryManager(repo.Users(), repo.Recoveries(), mails.mailer()).
		WithActivitySink(repo.Activity())

	resolver := accounts.NewTierResolver(repo.Tiers())
	gate := accounts.NewGate(validator, resolver, accounts.DefaultConfig())

	ctrl := accounts.NewAccountsController(accounts.ControllerDeps{
		Repo:     repo,
		Auth:     accounts.NewAuthenticator(verifier, issuer),
		Gate:     gate,
		Recovery: recovery,
		States:   states,
		Resolver: resolver,
	})

	app := fiber.New(fiber.Config{ErrorHandler: accounts.ErrorHandler(nil)})
	ctrl.RegisterRoutes(app)

	return &testServer{app: app, db: db, repo: repo, mails: mails}
}

// seedUser inserts an account directly, skipping the registration flow, so
// tests do not pay the production hash cost for fixtures.
func (s *testServer) seedUser(t *testing.T, username, password, tierName string) *accounts.User {
	t.Helper()
	ctx := context.Background()

	tier, err := s.repo.Tiers().GetTierByName(ctx, tierName)
	require.NoError(t, err)

	user, err := s.repo.Users().Create(ctx, &accounts.User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: cheapHash(password),
		State:        accounts.StateActive,
		TierID:       tier.ID,
	})
	require.NoError(t, err)
	return user
}

func (s *testServer) request(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}

	return res.StatusCode, decoded
}

func (s *testServer) login(t *testing.T, identifier, password string) string {
	t.Helper()
	status, body := s.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegistrationAndLoginFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.request(t, http.MethodPost, "/users", "", fiber.Map{
		"name":       "Alice Doe",
		"username":   "alice",
		"email":      "Alice@Example.com",
		"password":   "Sup3r$ecret",
		"birth_date": "1990-04-01",
	})
	require.Equal(t, http.StatusCreated, status, body)

	user, _ := body["user"].(map[string]any)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, accounts.StateActive, user["state"])
	assert.Equal(t, accounts.TierReader, user["tier"])

	// login works with either identifier form
	byUsername := srv.login(t, "alice", "Sup3r$ecret")
	byEmail := srv.login(t, "alice@example.com", "Sup3r$ecret")
	assert.NotEmpty(t, byUsername)
	assert.NotEmpty(t, byEmail)

	status, body = srv.request(t, http.MethodGet, "/users/me", byUsername, nil)
	require.Equal(t, http.StatusOK, status, body)
	me, _ := body["user"].(map[string]any)
	require.NotNil(t, me)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "1990-04-01", me["birth_date"])
}

func TestRegistrationRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "taken", "Sup3r$ecret", accounts.TierReader)

	status, body := srv.request(t, http.MethodPost, "/users", "", fiber.Map{
		"name":     "Copycat",
		"username": "taken",
		"email":    "somebody@example.com",
		"password": "Sup3r$ecret",
	})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = srv.request(t, http.MethodPost, "/users", "", fiber.Map{
		"name":     "Weakling",
		"username": "weakling",
		"email":    "weakling@example.com",
		"password": "password",
	})
	assert.Equal(t, http.StatusBadRequest, status, body)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "carol", "Sup3r$ecret", accounts.TierReader)

	unknownStatus, unknownBody := srv.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": "nobody",
		"password":   "Sup3r$ecret",
	})
	wrongStatus, wrongBody := srv.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": "carol",
		"password":   "not-the-password",
	})

	assert.Equal(t, unknownStatus, wrongStatus)
	assert.Equal(t, unknownBody["message"], wrongBody["message"])
	assert.Equal(t, unknownBody["text_code"], wrongBody["text_code"])
	assert.Equal(t, http.StatusBadRequest, unknownStatus)
}

func TestAdminListAndStateChange(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "root", "Sup3r$ecret", accounts.TierAdmin)
	target := srv.seedUser(t, "dave", "Sup3r$ecret", accounts.TierReader)

	adminToken := srv.login(t, "root", "Sup3r$ecret")
	readerToken := srv.login(t, "dave", "Sup3r$ecret")

	// listing is admin-only
	status, _ := srv.request(t, http.MethodGet, "/users", readerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := srv.request(t, http.MethodGet, "/users?page=1&quantity=10", adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["total"])

	// suspend, observe the login rejection, then reinstate
	path := fmt.Sprintf("/users/%d/state", target.ID)
	status, body = srv.request(t, http.MethodPut, path, adminToken, fiber.Map{
		"state":  accounts.StateSuspended,
		"reason": "abuse report",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = srv.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": "dave",
		"password":   "Sup3r$ecret",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodeAccountNotActive, body["text_code"])

	status, body = srv.request(t, http.MethodPut, path, adminToken, fiber.Map{
		"state": accounts.StateActive,
	})
	require.Equal(t, http.StatusOK, status, body)
	srv.login(t, "dave", "Sup3r$ecret")
}

func TestDisabledIsTerminalWithoutForce(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "root", "Sup3r$ecret", accounts.TierAdmin)
	target := srv.seedUser(t, "erin", "Sup3r$ecret", accounts.TierReader)

	adminToken := srv.login(t, "root", "Sup3r$ecret")
	path := fmt.Sprintf("/users/%d/state", target.ID)

	status, _ := srv.request(t, http.MethodPut, path, adminToken, fiber.Map{
		"state": accounts.StateDisabled,
	})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.request(t, http.MethodPut, path, adminToken, fiber.Map{
		"state": accounts.StateActive,
	})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, _ = srv.request(t, http.MethodPut, path, adminToken, fiber.Map{
		"state": accounts.StateActive,
		"force": true,
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestProfileAccessAndEditGates(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.seedUser(t, "alice", "Sup3r$ecret", accounts.TierReader)
	bob := srv.seedUser(t, "bobby", "Sup3r$ecret", accounts.TierReader)

	aliceToken := srv.login(t, "alice", "Sup3r$ecret")

	// reading another profile only needs a session
	status, body := srv.request(t, http.MethodGet, "/users/bobby", aliceToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	profile, _ := body["user"].(map[string]any)
	require.NotNil(t, profile)
	assert.Equal(t, "bobby", profile["username"])
	assert.NotContains(t, profile, "password_hash")

	status, _ = srv.request(t, http.MethodGet, fmt.Sprintf("/users/%d", alice.ID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = srv.request(t, http.MethodGet, "/users/ghost", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// editing someone else is admin territory
	status, _ = srv.request(t, http.MethodPatch, fmt.Sprintf("/users/%d", bob.ID), aliceToken, fiber.Map{
		"name": "Hijacked",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = srv.request(t, http.MethodPatch, fmt.Sprintf("/users/%d", alice.ID), aliceToken, fiber.Map{
		"name": "Alice Renamed",
	})
	require.Equal(t, http.StatusOK, status, body)
	edited, _ := body["user"].(map[string]any)
	require.NotNil(t, edited)
	assert.Equal(t, "Alice Renamed", edited["name"])
}

func TestTierChangeIsAdminOnly(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "root", "Sup3r$ecret", accounts.TierAdmin)
	target := srv.seedUser(t, "lena", "Sup3r$ecret", accounts.TierReader)

	readerToken := srv.login(t, "lena", "Sup3r$ecret")
	path := fmt.Sprintf("/users/%d", target.ID)

	status, _ := srv.request(t, http.MethodPatch, path, readerToken, fiber.Map{
		"tier": accounts.TierAdmin,
	})
	assert.Equal(t, http.StatusForbidden, status)

	adminToken := srv.login(t, "root", "Sup3r$ecret")
	status, body := srv.request(t, http.MethodPatch, path, adminToken, fiber.Map{
		"tier": accounts.TierEditor,
	})
	require.Equal(t, http.StatusOK, status, body)
	promoted, _ := body["user"].(map[string]any)
	require.NotNil(t, promoted)
	assert.Equal(t, accounts.TierEditor, promoted["tier"])
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "frank", "Sup3r$ecret", accounts.TierReader)

	token := srv.login(t, "frank", "Sup3r$ecret")

	status, body := srv.request(t, http.MethodPut, "/users/me/password", token, fiber.Map{
		"current_password": "wrong-guess",
		"new_password":     "An0ther$ecret",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodePasswordMismatch, body["text_code"])

	status, body = srv.request(t, http.MethodPut, "/users/me/password", token, fiber.Map{
		"current_password": "Sup3r$ecret",
		"new_password":     "An0ther$ecret",
	})
	require.Equal(t, http.StatusOK, status, body)

	srv.login(t, "frank", "An0ther$ecret")
	status, _ = srv.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": "frank",
		"password":   "Sup3r$ecret",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "grace", "Sup3r$ecret", accounts.TierReader)

	known, knownBody := srv.request(t, http.MethodPost, "/password-recovery", "", fiber.Map{
		"identifier": "grace@example.com",
	})
	unknown, unknownBody := srv.request(t, http.MethodPost, "/password-recovery", "", fiber.Map{
		"identifier": "nobody@example.com",
	})

	// both answers look the same, only the known account got mail
	assert.Equal(t, http.StatusAccepted, known)
	assert.Equal(t, known, unknown)
	assert.Equal(t, knownBody["message"], unknownBody["message"])
	assert.Empty(t, srv.mails.tokenFor("nobody@example.com"))

	token := srv.mails.tokenFor("grace@example.com")
	require.Len(t, token, accounts.RecoveryTokenBytes*2)

	status, body := srv.request(t, http.MethodPost, "/password-recovery/redeem", "", fiber.Map{
		"token":    token,
		"password": "Fresh$ecret9",
	})
	require.Equal(t, http.StatusOK, status, body)

	srv.login(t, "grace", "Fresh$ecret9")

	// the slot is single-use
	status, body = srv.request(t, http.MethodPost, "/password-recovery/redeem", "", fiber.Map{
		"token":    token,
		"password": "Fresh$ecret9",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodeRecoveryInvalid, body["text_code"])
}

func TestReissuedRecoveryTokenReplacesTheFirst(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "hanna", "Sup3r$ecret", accounts.TierReader)

	status, _ := srv.request(t, http.MethodPost, "/password-recovery", "", fiber.Map{
		"identifier": "hanna",
	})
	require.Equal(t, http.StatusAccepted, status)
	first := srv.mails.tokenFor("hanna@example.com")
	require.NotEmpty(t, first)

	status, _ = srv.request(t, http.MethodPost, "/password-recovery", "", fiber.Map{
		"identifier": "hanna",
	})
	require.Equal(t, http.StatusAccepted, status)
	second := srv.mails.tokenFor("hanna@example.com")
	require.NotEqual(t, first, second)

	// the superseded token no longer redeems, even though it never expired
	status, body := srv.request(t, http.MethodPost, "/password-recovery/redeem", "", fiber.Map{
		"token":    first,
		"password": "Fresh$ecret9",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodeRecoveryInvalid, body["text_code"])

	status, body = srv.request(t, http.MethodPost, "/password-recovery/redeem", "", fiber.Map{
		"token":    second,
		"password": "Fresh$ecret9",
	})
	require.Equal(t, http.StatusOK, status, body)
	srv.login(t, "hanna", "Fresh$ecret9")
}

func TestRemoveUser(t *testing.T) {
	srv := newTestServer(t)
	srv.seedUser(t, "root", "Sup3r$ecret", accounts.TierAdmin)
	target := srv.seedUser(t, "henry", "Sup3r$ecret", accounts.TierReader)

	adminToken := srv.login(t, "root", "Sup3r$ecret")

	// a pending recovery slot must not block removal
	status, _ := srv.request(t, http.MethodPost, "/password-recovery", "", fiber.Map{
		"identifier": "henry",
	})
	require.Equal(t, http.StatusAccepted, status)

	status, _ = srv.request(t, http.MethodDelete, fmt.Sprintf("/users/%d", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = srv.request(t, http.MethodGet, fmt.Sprintf("/users/%d", target.ID), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = srv.request(t, http.MethodPost, "/login", "", fiber.Map{
		"identifier": "henry",
		"password":   "Sup3r$ecret",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAnonymousAccessIsRejected(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/users/me", "/users"} {
		status, body := srv.request(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, accounts.TextCodeTokenMissing, body["text_code"], path)
	}

	status, body := srv.request(t, http.MethodGet, "/users/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, accounts.TextCodeUnauthorized, body["text_code"])
}
