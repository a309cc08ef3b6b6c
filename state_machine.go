package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidTransition marks a state change the lifecycle rules reject.
	TextCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
	// TextCodeTerminalState marks an attempt to leave a terminal state.
	TextCodeTerminalState = "TERMINAL_ACCOUNT_STATE"
)

// errInvalidTransition builds a fresh rejection error. Transition metadata
// is request-scoped, so it must never land on a shared error value.
func errInvalidTransition(metadata map[string]any) error {
	return goerrors.New("invalid account state transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(metadata)
}

func errTerminalState(metadata map[string]any) error {
	return goerrors.New("account state is terminal", goerrors.CategoryConflict).
		WithTextCode(TextCodeTerminalState).
		WithCode(goerrors.CodeConflict).
		WithMetadata(metadata)
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithTransitionMetadata merges metadata into the audit event.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata == nil {
			opts.metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithSuspendedUntil sets the expiry recorded when entering the suspended
// state. Without it the suspension is indefinite.
func WithSuspendedUntil(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.until = &t
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*AccountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the sink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *AccountStateMachine) {
		sm.sink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *AccountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// AccountStateMachine enforces legal lifecycle transitions and records an
// audit event for every change.
type AccountStateMachine struct {
	store       UserStore
	transitions map[AccountState]map[AccountState]struct{}
	now         func() time.Time
	sink        ActivitySink
	logger      Logger
}

type transitionOptions struct {
	reason   string
	metadata map[string]any
	force    bool
	until    *time.Time
}

// NewAccountStateMachine returns the default implementation backed by the
// provided store.
func NewAccountStateMachine(store UserStore, opts ...StateMachineOption) *AccountStateMachine {
	sm := &AccountStateMachine{
		store: store,
		transitions: map[AccountState]map[AccountState]struct{}{
			StateActive: {
				StateSuspended: {},
				StateDisabled:  {},
			},
			StateSuspended: {
				StateActive:   {},
				StateDisabled: {},
			},
		},
		now:    time.Now,
		sink:   noopActivitySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// CurrentState normalizes and returns the user's state.
func (sm *AccountStateMachine) CurrentState(user *User) AccountState {
	if user == nil {
		return ""
	}
	user.EnsureState()
	return user.State
}

// Transition moves the user to the target state, persisting through the
// store. A suspension expiry must be in the future at transition time;
// entering active always clears the expiry.
func (sm *AccountStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target AccountState, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, errInvalidTransition(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	user.EnsureState()
	from := user.State

	if target == "" {
		return nil, errInvalidTransition(map[string]any{
			"reason": "target state is empty",
		})
	}

	if from == target {
		return user, nil
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if from == StateDisabled && !options.force {
		return nil, errTerminalState(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !options.force && !sm.canTransition(from, target) {
		return nil, errInvalidTransition(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	until := options.until
	if target != StateSuspended {
		until = nil
	}
	if until != nil && !until.After(sm.now()) {
		return nil, errInvalidTransition(map[string]any{
			"reason": "suspension expiry must be in the future",
			"until":  until,
		})
	}

	updated, err := sm.store.UpdateState(ctx, user.ID, target, until)
	if err != nil {
		return nil, err
	}

	user.State = target
	user.StateUntil = until
	if updated != nil {
		user.StateUntil = updated.StateUntil
		user.UpdatedAt = updated.UpdatedAt
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventStateChanged,
		Actor:     actor,
		UserID:    user.ID,
		Success:   true,
		FromState: from,
		ToState:   target,
		Metadata:  sm.eventMetadata(options),
	})

	return user, nil
}

// Suspend is a convenience wrapper for the active -> suspended transition.
func (sm *AccountStateMachine) Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return sm.Transition(ctx, actor, user, StateSuspended, opts...)
}

// Reinstate moves a suspended account back to active.
func (sm *AccountStateMachine) Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return sm.Transition(ctx, actor, user, StateActive, opts...)
}

func (sm *AccountStateMachine) canTransition(from, to AccountState) bool {
	targets, ok := sm.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (sm *AccountStateMachine) eventMetadata(options *transitionOptions) map[string]any {
	metadata := map[string]any{}
	for k, v := range options.metadata {
		metadata[k] = v
	}
	if options.reason != "" {
		metadata["reason"] = options.reason
	}
	if options.until != nil {
		metadata["until"] = options.until.Format(time.RFC3339)
	}
	return metadata
}

func (sm *AccountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}
	if err := sm.sink.Record(ctx, event); err != nil {
		sm.logger.Warn("activity sink record error: %v", err)
	}
}
