package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// RecoveryTokenBytes is the randomness behind each recovery token; the
	// stored value is its hex encoding.
	RecoveryTokenBytes = 60
	// RecoveryWindow is the fixed redeem window from issuance.
	RecoveryWindow = 30 * time.Minute
)

// RecoveryManager generates, stores, and redeems the single-use password
// recovery token for an account. Expiry timestamps are computed in UTC so
// the window is unambiguous across deployments.
type RecoveryManager struct {
	users  UserStore
	slots  RecoveryStore
	mailer Mailer
	sink   ActivitySink
	logger Logger
	now    func() time.Time
	rand   io.Reader
}

// NewRecoveryManager returns a manager backed by the given stores and mailer.
func NewRecoveryManager(users UserStore, slots RecoveryStore, mailer Mailer) *RecoveryManager {
	return &RecoveryManager{
		users:  users,
		slots:  slots,
		mailer: mailer,
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
		rand:   rand.Reader,
	}
}

// WithActivitySink configures the audit sink for recovery events.
func (m *RecoveryManager) WithActivitySink(sink ActivitySink) *RecoveryManager {
	m.sink = normalizeActivitySink(sink)
	return m
}

func (m *RecoveryManager) WithLogger(logger Logger) *RecoveryManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithClock injects a custom clock, useful for tests.
func (m *RecoveryManager) WithClock(clock func() time.Time) *RecoveryManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// WithRandomSource overrides the randomness source, useful for tests.
func (m *RecoveryManager) WithRandomSource(r io.Reader) *RecoveryManager {
	if r != nil {
		m.rand = r
	}
	return m
}

// IssueForAccount generates a fresh token and upserts it into the account's
// recovery slot, replacing any prior unredeemed token: only the most recent
// request is valid. The token is then handed to the mailer; a delivery
// failure surfaces distinctly but does not unwind the issued token.
func (m *RecoveryManager) IssueForAccount(ctx context.Context, user *User) (*PasswordRecovery, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	token, err := m.generateToken()
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().UTC().Add(RecoveryWindow)

	slot, err := m.slots.UpsertRecovery(ctx, user.ID, token, expiresAt)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store recovery token")
	}

	m.audit(ctx, ActivityEvent{
		EventType: ActivityEventRecoveryIssued,
		Actor:     actorFromUser(user),
		UserID:    user.ID,
		Success:   true,
	})

	if err := m.mailer.SendRecoveryEmail(ctx, user, token); err != nil {
		m.logger.Error("recovery email delivery failed for user %d: %v", user.ID, err)
		return slot, ErrDeliveryFailed
	}

	return slot, nil
}

// IssueByIdentifier resolves the account by username or email and issues a
// recovery token. Unknown identifiers report success without issuing
// anything, so the endpoint cannot be used to enumerate accounts.
func (m *RecoveryManager) IssueByIdentifier(ctx context.Context, identifier string) error {
	user, err := m.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for recovery")
	}

	_, err = m.IssueForAccount(ctx, user)
	return err
}

// Redeem consumes a recovery token: it validates the new secret against the
// password policy, updates the account's secret hash, then clears the slot.
// The hash update is made durable before the clear is attempted; if the
// clear fails the token merely looks used, which is the safe direction.
func (m *RecoveryManager) Redeem(ctx context.Context, token, newSecret string) error {
	if token == "" {
		return ErrRecoveryTokenInvalid
	}

	slot, err := m.slots.GetRecoveryByToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrRecoveryTokenInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up recovery token")
	}

	now := m.now().UTC()
	if !slot.Redeemable(now) {
		// A cleared or half-populated slot reads as an unknown token;
		// only a live token past its window is expired. Either way the
		// slot stays put: the next issuance overwrites it.
		if slot == nil || slot.Token == nil || slot.ExpiresAt == nil {
			return ErrRecoveryTokenInvalid
		}
		return ErrRecoveryTokenExpired
	}

	if err := ValidatePasswordStrength(newSecret); err != nil {
		return err
	}

	hash, err := HashPassword(newSecret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := m.users.UpdatePasswordHash(ctx, slot.UserID, hash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	if err := m.slots.ClearRecovery(ctx, slot.UserID); err != nil {
		// The password change is not rolled back.
		m.logger.Warn("failed to clear recovery slot for user %d after password change: %v", slot.UserID, err)
	}

	m.audit(ctx, ActivityEvent{
		EventType: ActivityEventRecoveryRedeemed,
		Actor:     ActorRef{ID: slot.UserID, Type: "user"},
		UserID:    slot.UserID,
		Success:   true,
	})

	return nil
}

func (m *RecoveryManager) generateToken() (string, error) {
	buf := make([]byte, RecoveryTokenBytes)
	if _, err := io.ReadFull(m.rand, buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate recovery token")
	}
	return hex.EncodeToString(buf), nil
}

func (m *RecoveryManager) audit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
