package accounts

import (
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AccountsController exposes the account API over fiber. All responses are
// JSON; failures go through respondError so no handler leaks internals.
type AccountsController struct {
	Debug  bool
	Logger Logger

	repo     RepositoryManager
	auth     *Authenticator
	gate     *Gate
	recovery *RecoveryManager
	states   *AccountStateMachine

	register *RegisterUserHandler
	update   *UpdateUserHandler
	remove   *RemoveUserHandler
	password *ChangePasswordHandler
}

// ControllerDeps bundles the collaborators the controller needs.
type ControllerDeps struct {
	Repo     RepositoryManager
	Auth     *Authenticator
	Gate     *Gate
	Recovery *RecoveryManager
	States   *AccountStateMachine
	Resolver *TierResolver
	Logger   Logger

	// Sink overrides the repository activity sink when set.
	Sink ActivitySink
}

func NewAccountsController(deps ControllerDeps) *AccountsController {
	logger := deps.Logger
	if logger == nil {
		logger = defLogger{}
	}

	sink := deps.Sink
	if sink == nil {
		sink = deps.Repo.Activity()
	}

	return &AccountsController{
		Logger:   logger,
		repo:     deps.Repo,
		auth:     deps.Auth,
		gate:     deps.Gate,
		recovery: deps.Recovery,
		states:   deps.States,
		register: NewRegisterUserHandler(deps.Repo, deps.Resolver).
			WithActivitySink(sink).
			WithLogger(logger),
		update: NewUpdateUserHandler(deps.Repo, deps.Resolver).
			WithActivitySink(sink).
			WithLogger(logger),
		remove: NewRemoveUserHandler(deps.Repo).
			WithActivitySink(sink).
			WithLogger(logger),
		password: NewChangePasswordHandler(deps.Repo).
			WithActivitySink(sink).
			WithLogger(logger),
	}
}

// RegisterRoutes mounts every account endpoint on the app.
func (a *AccountsController) RegisterRoutes(app *fiber.App) {
	app.Post("/login", a.Login)

	app.Post("/password-recovery", a.RecoveryInit)
	app.Post("/password-recovery/redeem", a.RecoveryRedeem)

	app.Post("/users", a.gate.OptionalSession(), a.Register)
	app.Get("/users", a.gate.RequireSession(), a.gate.RequireTier(TierAdmin), a.List)
	app.Get("/users/me", a.gate.RequireSession(), a.Me)
	app.Get("/users/:ref", a.gate.RequireSession(), a.Profile)
	app.Patch("/users/:id", a.gate.RequireSession(), a.Update)
	app.Delete("/users/:id", a.gate.RequireSession(), a.Remove)
	app.Put("/users/:id/password", a.gate.RequireSession(), a.ChangePassword)
	app.Put("/users/:id/state", a.gate.RequireSession(), a.gate.RequireTier(TierAdmin), a.ChangeState)
}

// LoginPayload carries login credentials. Identifier accepts a username or
// an e-mail address.
type LoginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Identifier, validation.Required, validation.Length(4, 100)),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AccountsController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	if a.Debug {
		a.Logger.Debug("login attempt: %s", print.MaybePrettyJSON(map[string]string{
			"identifier": payload.Identifier,
		}))
	}

	token, err := a.auth.Login(c.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
	})
}

func (a *AccountsController) Register(c *fiber.Ctx) error {
	payload := new(RegisterUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	payload.RequestedBy = a.gate.SessionClaims(c)

	user, err := a.register.Execute(c.UserContext(), *payload)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    userView(user),
	})
}

func (a *AccountsController) Me(c *fiber.Ctx) error {
	claims := a.gate.SessionClaims(c)
	if claims == nil {
		return respondError(c, ErrUnauthorized)
	}

	user, err := a.repo.Users().GetByID(c.Context(), claims.UserID())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userView(user),
	})
}

// Profile looks a user up by numeric id or by username. Reading someone
// else's profile only needs a session; editing does not go through here.
func (a *AccountsController) Profile(c *fiber.Ctx) error {
	ref := c.Params("ref")
	if ref == "" {
		return respondError(c, ErrAccountNotFound)
	}

	user, err := a.repo.Users().GetByIDOrUsername(c.Context(), ref)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userView(user),
	})
}

func (a *AccountsController) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	quantity := c.QueryInt("quantity", 10)

	users, total, err := a.repo.Users().List(c.Context(), page, quantity)
	if err != nil {
		return respondError(c, err)
	}

	views := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"users":    views,
		"total":    total,
		"page":     page,
		"quantity": quantity,
	})
}

func (a *AccountsController) Update(c *fiber.Ctx) error {
	claims := a.gate.SessionClaims(c)

	targetID, err := a.targetID(c, claims)
	if err != nil {
		return respondError(c, err)
	}

	if err := a.gate.Authorize(claims, targetID, TierReader); err != nil {
		return respondError(c, err)
	}

	payload := new(UpdateUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse update payload").
			WithCode(goerrors.CodeBadRequest))
	}

	payload.TargetID = targetID
	payload.RequestedBy = claims

	user, err := a.update.Execute(c.UserContext(), *payload)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userView(user),
	})
}

func (a *AccountsController) Remove(c *fiber.Ctx) error {
	claims := a.gate.SessionClaims(c)

	targetID, err := a.targetID(c, claims)
	if err != nil {
		return respondError(c, err)
	}

	if err := a.gate.Authorize(claims, targetID, TierReader); err != nil {
		return respondError(c, err)
	}

	if err := a.remove.Execute(c.UserContext(), RemoveUserMessage{
		TargetID:    targetID,
		RequestedBy: claims,
	}); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (a *AccountsController) ChangePassword(c *fiber.Ctx) error {
	claims := a.gate.SessionClaims(c)

	targetID, err := a.targetID(c, claims)
	if err != nil {
		return respondError(c, err)
	}

	if err := a.gate.Authorize(claims, targetID, TierReader); err != nil {
		return respondError(c, err)
	}

	payload := new(ChangePasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse password payload").
			WithCode(goerrors.CodeBadRequest))
	}

	payload.TargetID = targetID
	payload.RequestedBy = claims

	if err := a.password.Execute(c.UserContext(), *payload); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// RecoveryInitPayload starts a password recovery flow.
type RecoveryInitPayload struct {
	Identifier string `json:"identifier"`
}

func (p RecoveryInitPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Identifier, validation.Required, validation.Length(4, 100)),
	)
}

// RecoveryInit always answers 202 for well-formed requests so callers can
// not discover which identifiers exist.
func (a *AccountsController) RecoveryInit(c *fiber.Ctx) error {
	payload := new(RecoveryInitPayload)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse recovery payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	if err := a.recovery.IssueByIdentifier(c.Context(), payload.Identifier); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "if the account exists, a recovery message is on its way",
	})
}

// RecoveryRedeemPayload consumes a recovery token.
type RecoveryRedeemPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (p RecoveryRedeemPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required, validation.Length(120, 120), is.Hexadecimal),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AccountsController) RecoveryRedeem(c *fiber.Ctx) error {
	payload := new(RecoveryRedeemPayload)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse redeem payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return respondError(c, ErrRecoveryTokenInvalid)
	}

	if err := a.recovery.Redeem(c.Context(), payload.Token, payload.Password); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// StateChangePayload moves an account to a new state.
type StateChangePayload struct {
	State  string `json:"state"`
	Until  string `json:"until"`
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

func (p StateChangePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.State, validation.Required, validation.In(
			StateActive, StateSuspended, StateDisabled,
		)),
		validation.Field(&p.Until, validation.Date(time.RFC3339)),
	)
}

func (a *AccountsController) ChangeState(c *fiber.Ctx) error {
	claims := a.gate.SessionClaims(c)

	targetID, err := a.targetID(c, claims)
	if err != nil {
		return respondError(c, err)
	}

	payload := new(StateChangePayload)
	if err := c.BodyParser(payload); err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse state payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	user, err := a.repo.Users().GetByID(c.Context(), targetID)
	if err != nil {
		return respondError(c, err)
	}

	opts := []TransitionOption{}
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}
	if payload.Force {
		opts = append(opts, WithForceTransition())
	}
	if payload.Until != "" {
		until, perr := parseTransitionTime(payload.Until)
		if perr != nil {
			return respondError(c, perr)
		}
		opts = append(opts, WithSuspendedUntil(until))
	}

	updated, err := a.states.Transition(c.Context(), actorFromClaims(claims), user, AccountState(payload.State), opts...)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    userView(updated),
	})
}

// targetID resolves the :id path segment. "me", an empty value, or the
// caller's own id all mean self.
func (a *AccountsController) targetID(c *fiber.Ctx, claims *SessionClaims) (int64, error) {
	raw := c.Params("id")
	if raw == "" || raw == "me" {
		if claims == nil {
			return 0, ErrUnauthorized
		}
		return claims.UserID(), nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, goerrors.New("invalid account id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	return id, nil
}

func userView(user *User) fiber.Map {
	if user == nil {
		return fiber.Map{}
	}

	user.EnsureState()

	view := fiber.Map{
		"id":       user.ID,
		"name":     user.Name,
		"username": user.Username,
		"email":    user.Email,
		"state":    user.State,
		"tier":     user.TierName(),
	}

	if !user.BirthDate.IsZero() {
		view["birth_date"] = user.BirthDate.Format("2006-01-02")
	}

	if user.CreatedAt != nil {
		view["created_at"] = user.CreatedAt
	}

	return view
}
