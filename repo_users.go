package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Users is the account repository surface. The core consumes the narrow
// UserStore slice of it; handlers use the rest.
type Users interface {
	UserStore

	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Update(ctx context.Context, user *User, columns ...string) (*User, error)
	Delete(ctx context.Context, id int64) error
	GetByIDOrUsername(ctx context.Context, ref string) (*User, error)
	List(ctx context.Context, page, perPage int) ([]*User, int, error)
}

type users struct {
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	user := new(User)
	err := a.db.NewSelect().
		Model(user).
		Relation("Tier").
		Where("usr.username = ?", identifier).
		WhereOr("usr.email = ?", identifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return user, nil
}

func (a *users) GetByID(ctx context.Context, id int64) (*User, error) {
	user := new(User)
	err := a.db.NewSelect().
		Model(user).
		Relation("Tier").
		Where("usr.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return user, nil
}

// GetByIDOrUsername resolves a path reference that may be a numeric id or a
// username.
func (a *users) GetByIDOrUsername(ctx context.Context, ref string) (*User, error) {
	user := new(User)
	q := a.db.NewSelect().Model(user).Relation("Tier")

	if isAllDigits(ref) {
		q = q.Where("usr.id = ?", ref).WhereOr("usr.username = ?", ref)
	} else {
		q = q.Where("usr.username = ?", ref)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, wrapUserErr(err)
	}
	return user, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	user.EnsureState()
	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, wrapUserErr(err)
	}

	created := new(User)
	err := tx.NewSelect().
		Model(created).
		Relation("Tier").
		Where("usr.id = ?", user.ID).
		Scan(ctx)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return created, nil
}

func (a *users) Update(ctx context.Context, user *User, columns ...string) (*User, error) {
	now := time.Now()
	user.UpdatedAt = &now

	q := a.db.NewUpdate().Model(user).WherePK()
	if len(columns) > 0 {
		columns = append(columns, "updated_at")
		q = q.Column(columns...)
	}

	if _, err := q.Exec(ctx); err != nil {
		return nil, wrapUserErr(err)
	}
	return a.GetByID(ctx, user.ID)
}

func (a *users) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapUserErr(err)
	}
	return requireAffected(res)
}

func (a *users) UpdateState(ctx context.Context, id int64, state AccountState, until *time.Time) (*User, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("state = ?", state).
		Set("state_until = ?", until).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return a.GetByID(ctx, id)
}

func (a *users) Delete(ctx context.Context, id int64) error {
	res, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapUserErr(err)
	}
	return requireAffected(res)
}

func (a *users) List(ctx context.Context, page, perPage int) ([]*User, int, error) {
	if perPage <= 0 {
		perPage = 10
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * perPage
	}

	var records []*User
	total, err := a.db.NewSelect().
		Model(&records).
		Relation("Tier").
		Order("usr.id ASC").
		Limit(perPage).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list users")
	}

	return records, total, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func wrapUserErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrAccountNotFound
	case isUniqueViolation(err, "username"):
		return goerrors.New("username already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeDuplicateIdentifier).
			WithCode(goerrors.CodeBadRequest)
	case isUniqueViolation(err, "email"):
		return goerrors.New("e-mail already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeDuplicateIdentifier).
			WithCode(goerrors.CodeBadRequest)
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user store operation failed")
	}
}

// isUniqueViolation matches sqlite and postgres unique-constraint errors for
// the given column.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value") {
		return false
	}
	return strings.Contains(msg, column)
}
