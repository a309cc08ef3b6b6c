package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CredentialVerifier checks a login identifier and secret against stored
// credentials. Every attempt is reported to the audit sink; the public
// error never says whether the account exists.
type CredentialVerifier struct {
	store     UserStore
	sink      ActivitySink
	logger    Logger
	lifecycle *AccountStateMachine
	now       func() time.Time
}

// NewCredentialVerifier returns a verifier backed by the given store.
func NewCredentialVerifier(store UserStore) *CredentialVerifier {
	return &CredentialVerifier{
		store:  store,
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
	}
}

// WithActivitySink configures the audit sink for login attempts.
func (v *CredentialVerifier) WithActivitySink(sink ActivitySink) *CredentialVerifier {
	v.sink = normalizeActivitySink(sink)
	return v
}

func (v *CredentialVerifier) WithLogger(logger Logger) *CredentialVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithStateMachine lets the verifier reinstate suspensions whose deadline
// has lapsed instead of rejecting the login.
func (v *CredentialVerifier) WithStateMachine(sm *AccountStateMachine) *CredentialVerifier {
	v.lifecycle = sm
	return v
}

// WithClock injects a custom clock, useful for tests.
func (v *CredentialVerifier) WithClock(clock func() time.Time) *CredentialVerifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// Verify finds the account by username or email (case-sensitive exact
// match), compares the secret against the stored hash, and requires the
// account to be active. Malformed input fails before any store lookup.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (Identity, error) {
	if identifier == "" || !ValidIdentifierShape(identifier) {
		return nil, goerrors.New("e-mail or username is malformed", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if secret == "" {
		return nil, goerrors.New("password must not be empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := v.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			v.audit(ctx, ActivityEvent{
				EventType:  ActivityEventLoginFailure,
				Actor:      ActorRef{Type: "unknown"},
				Identifier: identifier,
				ErrorLabel: AuditErrorUserNotFound,
			})
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ComparePasswordAndHash(secret, user.PasswordHash); err != nil {
		v.audit(ctx, ActivityEvent{
			EventType:  ActivityEventLoginFailure,
			Actor:      actorFromUser(user),
			UserID:     user.ID,
			Identifier: identifier,
			ErrorLabel: AuditErrorPasswordMismatch,
		})
		return nil, ErrInvalidCredentials
	}

	user.EnsureState()

	if user.SuspensionLapsed(v.now()) {
		if reinstated, err := v.reinstate(ctx, user); err != nil {
			v.logger.Warn("failed to reinstate lapsed suspension for user %d: %v", user.ID, err)
		} else {
			user = reinstated
		}
	}

	if user.State != StateActive {
		v.audit(ctx, ActivityEvent{
			EventType:  ActivityEventLoginFailure,
			Actor:      actorFromUser(user),
			UserID:     user.ID,
			Identifier: identifier,
			ErrorLabel: AuditErrorAccountNotActive,
			Metadata:   map[string]any{"state": user.State},
		})
		return nil, ErrAccountNotActive
	}

	v.audit(ctx, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      actorFromUser(user),
		UserID:     user.ID,
		Identifier: identifier,
		Success:    true,
	})

	return NewIdentityFromUser(user), nil
}

func (v *CredentialVerifier) reinstate(ctx context.Context, user *User) (*User, error) {
	if v.lifecycle != nil {
		return v.lifecycle.Transition(ctx, ActorRef{Type: "system"}, user, StateActive,
			WithTransitionReason("suspension deadline lapsed"))
	}
	return v.store.UpdateState(ctx, user.ID, StateActive, nil)
}

func (v *CredentialVerifier) audit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = v.now()
	}
	if err := v.sink.Record(ctx, event); err != nil {
		v.logger.Warn("activity sink record error: %v", err)
	}
}
