package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// RemoveUserMessage deletes an account and its recovery slot.
type RemoveUserMessage struct {
	TargetID int64 `json:"-"`

	RequestedBy *SessionClaims `json:"-"`
}

func (e RemoveUserMessage) Type() string { return "user.remove" }

type RemoveUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewRemoveUserHandler(repo RepositoryManager) *RemoveUserHandler {
	return &RemoveUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RemoveUserHandler) WithActivitySink(sink ActivitySink) *RemoveUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RemoveUserHandler) WithLogger(logger Logger) *RemoveUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RemoveUserHandler) Execute(ctx context.Context, event RemoveUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user removal",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RemoveUserHandler) execute(ctx context.Context, event RemoveUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.TargetID)
	if err != nil {
		return err
	}

	if err := h.repo.Recoveries().DeleteRecovery(ctx, user.ID); err != nil {
		return err
	}

	if err := h.repo.Users().Delete(ctx, user.ID); err != nil {
		return err
	}

	h.audit(ctx, ActivityEvent{
		EventType:  ActivityEventRemoved,
		Actor:      actorFromClaims(event.RequestedBy),
		UserID:     user.ID,
		Identifier: user.Username,
		Success:    true,
	})

	return nil
}

func (h *RemoveUserHandler) audit(ctx context.Context, event ActivityEvent) {
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("activity record failed: %v", err)
	}
}
