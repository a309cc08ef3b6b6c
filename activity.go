package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported audit categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventRegistered       ActivityEventType = "user.registered"
	ActivityEventUpdated          ActivityEventType = "user.updated"
	ActivityEventRemoved          ActivityEventType = "user.removed"
	ActivityEventStateChanged     ActivityEventType = "user.state.changed"
	ActivityEventPasswordChanged  ActivityEventType = "auth.password.changed"
	ActivityEventRecoveryIssued   ActivityEventType = "auth.recovery.issued"
	ActivityEventRecoveryRedeemed ActivityEventType = "auth.recovery.redeemed"
)

// Error labels recorded on failed login attempts. These stay internal; the
// public error never distinguishes them.
const (
	AuditErrorUserNotFound     = "user_not_found"
	AuditErrorPasswordMismatch = "password_mismatch"
	AuditErrorAccountNotActive = "account_not_active"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   int64
	Type string
}

// ActivityEvent captures audit-friendly information about an action. The
// core writes events on every login attempt and every privileged mutation;
// it never reads them back.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     int64
	Identifier string
	Success    bool
	ErrorLabel string
	FromState  AccountState
	ToState    AccountState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: user.ID, Type: "user"}
}

func actorFromClaims(claims *SessionClaims) ActorRef {
	if claims == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: claims.UserID(), Type: "user"}
}
