package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// ChangePasswordMessage rotates an account's password. The current password
// is always verified, even for administrators acting on someone else.
type ChangePasswordMessage struct {
	TargetID        int64  `json:"-"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`

	RequestedBy *SessionClaims `json:"-"`
}

func (e ChangePasswordMessage) Type() string { return "auth.password.change" }

func (e ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.CurrentPassword, validation.Required),
		validation.Field(&e.NewPassword, validation.Required, validation.By(StrongPassword)),
	)
}

type ChangePasswordHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": FormatValidationErrors(err)})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.TargetID)
	if err != nil {
		return err
	}

	if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		h.audit(ctx, ActivityEvent{
			EventType:  ActivityEventPasswordChanged,
			Actor:      actorFromClaims(event.RequestedBy),
			UserID:     user.ID,
			Identifier: user.Username,
			Success:    false,
			ErrorLabel: AuditErrorPasswordMismatch,
		})
		return ErrPasswordMismatch
	}

	hash, err := HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := h.repo.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	h.audit(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		Actor:      actorFromClaims(event.RequestedBy),
		UserID:     user.ID,
		Identifier: user.Username,
		Success:    true,
	})

	return nil
}

func (h *ChangePasswordHandler) audit(ctx context.Context, event ActivityEvent) {
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("activity record failed: %v", err)
	}
}
