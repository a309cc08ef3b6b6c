package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/uptrace/bun"
)

// RegisterUserMessage carries the input of a registration request. Tier is
// honored only when RequestedBy holds an administrator session; everyone
// else lands on the reader tier.
type RegisterUserMessage struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	BirthDate string `json:"birth_date"`
	Tier      string `json:"tier"`

	RequestedBy *SessionClaims `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the message shape. Password strength is enforced
// separately so its policy error keeps a dedicated text code.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Username, UsernameRule...),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.By(StrongPassword)),
		validation.Field(&e.BirthDate, validation.Date("2006-01-02")),
		validation.Field(&e.Tier, validation.In(anyTiers()...)),
	)
}

func anyTiers() []any {
	tiers := AllTiers()
	out := make([]any, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, t)
	}
	return out
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	resolver *TierResolver
	sink     ActivitySink
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, resolver *TierResolver) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		resolver: resolver,
		sink:     noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.sink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": FormatValidationErrors(err)})
	}

	tierID, err := h.resolveTier(ctx, event)
	if err != nil {
		return nil, err
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = strings.ToLower(strings.TrimSpace(event.Email))
		user.Name = event.Name
		user.Username = getUsername(event.Username, event.Email)
		if event.BirthDate != "" {
			born, perr := time.Parse("2006-01-02", event.BirthDate)
			if perr != nil {
				return goerrors.Wrap(perr, goerrors.CategoryValidation, "invalid birth date").
					WithCode(goerrors.CodeBadRequest)
			}
			user.BirthDate = born
		}
		user.State = StateActive
		user.TierID = tierID

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.audit(ctx, ActivityEvent{
		EventType:  ActivityEventRegistered,
		Actor:      registrationActor(event.RequestedBy, user),
		UserID:     user.ID,
		Identifier: user.Username,
		Success:    true,
		Metadata:   map[string]any{"tier_id": user.TierID},
	})

	return user, nil
}

// resolveTier ignores the requested tier unless an administrator asked for
// it. Unknown names from an administrator are an error rather than a silent
// downgrade.
func (h *RegisterUserHandler) resolveTier(ctx context.Context, event RegisterUserMessage) (int64, error) {
	name := TierReader
	if event.Tier != "" && requesterIsAdmin(ctx, h.resolver, event.RequestedBy) {
		name = event.Tier
	}
	return h.resolver.IDForTier(ctx, name)
}

func (h *RegisterUserHandler) audit(ctx context.Context, event ActivityEvent) {
	if err := h.sink.Record(ctx, event); err != nil {
		h.logger.Error("activity record failed: %v", err)
	}
}

func registrationActor(claims *SessionClaims, created *User) ActorRef {
	if claims != nil {
		return actorFromClaims(claims)
	}
	return actorFromUser(created)
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
