package accounts_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	accounts "github.com/rallende/go-accounts"
)

// MockUserStore implements accounts.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByIdentifier(ctx context.Context, identifier string) (*accounts.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUserStore) GetByID(ctx context.Context, id int64) (*accounts.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUserStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockUserStore) UpdateState(ctx context.Context, id int64, state accounts.AccountState, until *time.Time) (*accounts.User, error) {
	args := m.Called(ctx, id, state, until)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

// MockRecoveryStore implements accounts.RecoveryStore
type MockRecoveryStore struct {
	mock.Mock
}

func (m *MockRecoveryStore) UpsertRecovery(ctx context.Context, userID int64, token string, expiresAt time.Time) (*accounts.PasswordRecovery, error) {
	args := m.Called(ctx, userID, token, expiresAt)
	slot, _ := args.Get(0).(*accounts.PasswordRecovery)
	return slot, args.Error(1)
}

func (m *MockRecoveryStore) GetRecoveryByToken(ctx context.Context, token string) (*accounts.PasswordRecovery, error) {
	args := m.Called(ctx, token)
	slot, _ := args.Get(0).(*accounts.PasswordRecovery)
	return slot, args.Error(1)
}

func (m *MockRecoveryStore) ClearRecovery(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockTierStore implements accounts.TierStore
type MockTierStore struct {
	mock.Mock
}

func (m *MockTierStore) GetTierByName(ctx context.Context, name string) (*accounts.PermissionTier, error) {
	args := m.Called(ctx, name)
	tier, _ := args.Get(0).(*accounts.PermissionTier)
	return tier, args.Error(1)
}

// MockMailer implements accounts.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendRecoveryEmail(ctx context.Context, user *accounts.User, token string) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

// capturingSink records every event it sees.
type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *capturingSink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) Events() []accounts.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *capturingSink) Last() accounts.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return accounts.ActivityEvent{}
	}
	return s.events[len(s.events)-1]
}

var (
	testKeyOnce sync.Once
	testRSAKey  *rsa.PrivateKey
)

// testKey returns a process-wide RSA key so tests do not pay for key
// generation repeatedly.
func testKey() *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testRSAKey = key
	})
	return testRSAKey
}

// cheapHash hashes at the minimum bcrypt cost; production cost would slow
// the suite to a crawl.
func cheapHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

func testUser(id int64, username, password string) *accounts.User {
	return &accounts.User{
		ID:           id,
		Name:         "Test User",
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: cheapHash(password),
		State:        accounts.StateActive,
		TierID:       1,
		Tier:         &accounts.PermissionTier{ID: 1, Name: accounts.TierReader},
	}
}
