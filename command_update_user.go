package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// UpdateUserMessage edits mutable profile fields. Nil pointers leave the
// column untouched.
type UpdateUserMessage struct {
	TargetID  int64   `json:"-"`
	Name      *string `json:"name"`
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	BirthDate *string `json:"birth_date"`
	Tier      *string `json:"tier"`

	RequestedBy *SessionClaims `json:"-"`
}

func (e UpdateUserMessage) Type() string { return "user.update" }

func (e UpdateUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Length(1, 200)),
		validation.Field(&e.Username, validation.Length(4, 25), validation.Match(usernameRe)),
		validation.Field(&e.Email, validation.Length(6, 100), is.Email),
		validation.Field(&e.BirthDate, validation.Date("2006-01-02")),
		validation.Field(&e.Tier, validation.In(anyTiers()...)),
	)
}

type UpdateUserHandler struct {
	repo     RepositoryManager
	resolver *TierResolver
	activity ActivitySink
	logger   Logger
}

func NewUpdateUserHandler(repo RepositoryManager, resolver *TierResolver) *UpdateUserHandler {
	return &UpdateUserHandler{
		repo:     repo,
		resolver: resolver,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *UpdateUserHandler) WithActivitySink(sink ActivitySink) *UpdateUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateUserHandler) WithLogger(logger Logger) *UpdateUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateUserHandler) Execute(ctx context.Context, event UpdateUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateUserHandler) execute(ctx context.Context, event UpdateUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid update payload").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": FormatValidationErrors(err)})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByID(ctx, event.TargetID)
	if err != nil {
		return nil, err
	}

	columns := []string{}

	if event.Name != nil {
		user.Name = *event.Name
		columns = append(columns, "name")
	}

	if event.Username != nil {
		user.Username = *event.Username
		columns = append(columns, "username")
	}

	if event.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*event.Email))
		columns = append(columns, "email")
	}

	if event.BirthDate != nil {
		born, perr := time.Parse("2006-01-02", *event.BirthDate)
		if perr != nil {
			return nil, goerrors.Wrap(perr, goerrors.CategoryValidation, "invalid birth date").
				WithCode(goerrors.CodeBadRequest)
		}
		user.BirthDate = born
		columns = append(columns, "birth_date")
	}

	// Only an admin may move an account between tiers.
	if event.Tier != nil && *event.Tier != user.TierName() {
		if h.resolver == nil || !requesterIsAdmin(ctx, h.resolver, event.RequestedBy) {
			return nil, ErrForbidden
		}
		tierID, terr := h.resolver.IDForTier(ctx, *event.Tier)
		if terr != nil {
			return nil, terr
		}
		user.TierID = tierID
		user.Tier = nil
		columns = append(columns, "tier_id")
	}

	if len(columns) == 0 {
		return user, nil
	}

	updated, err := h.repo.Users().Update(ctx, user, columns...)
	if err != nil {
		return nil, err
	}

	h.audit(ctx, ActivityEvent{
		EventType:  ActivityEventUpdated,
		Actor:      actorFromClaims(event.RequestedBy),
		UserID:     updated.ID,
		Identifier: updated.Username,
		Success:    true,
		Metadata:   map[string]any{"columns": columns},
	})

	return updated, nil
}

func (h *UpdateUserHandler) audit(ctx context.Context, event ActivityEvent) {
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Error("activity record failed: %v", err)
	}
}
