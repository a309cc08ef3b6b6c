package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Recoveries owns the password_recoveries table: one slot per account,
// last writer wins.
type Recoveries interface {
	RecoveryStore

	DeleteRecovery(ctx context.Context, userID int64) error
}

type recoveries struct {
	db *bun.DB
}

var _ Recoveries = (*recoveries)(nil)

// NewRecoveriesRepository returns a bun-backed Recoveries repository.
func NewRecoveriesRepository(db *bun.DB) Recoveries {
	return &recoveries{db: db}
}

// UpsertRecovery replaces the account's recovery slot atomically; concurrent
// issuances for the same account resolve to the most recent token.
func (r *recoveries) UpsertRecovery(ctx context.Context, userID int64, token string, expiresAt time.Time) (*PasswordRecovery, error) {
	now := time.Now().UTC()
	slot := &PasswordRecovery{
		UserID:    userID,
		Token:     &token,
		ExpiresAt: &expiresAt,
		UpdatedAt: &now,
	}

	_, err := r.db.NewInsert().
		Model(slot).
		On("CONFLICT (user_id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to upsert recovery slot")
	}

	return r.getByUserID(ctx, userID)
}

func (r *recoveries) GetRecoveryByToken(ctx context.Context, token string) (*PasswordRecovery, error) {
	slot := new(PasswordRecovery)
	err := r.db.NewSelect().
		Model(slot).
		Where("pwrc.token = ?", token).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerrors.New("recovery token not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up recovery slot")
	}
	return slot, nil
}

// ClearRecovery nulls the token and expiry together, consuming the slot.
func (r *recoveries) ClearRecovery(ctx context.Context, userID int64) error {
	_, err := r.db.NewUpdate().
		Model((*PasswordRecovery)(nil)).
		Set("token = NULL").
		Set("expires_at = NULL").
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear recovery slot")
	}
	return nil
}

// DeleteRecovery drops the slot row entirely, used when the owning account
// is removed.
func (r *recoveries) DeleteRecovery(ctx context.Context, userID int64) error {
	_, err := r.db.NewDelete().
		Model((*PasswordRecovery)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete recovery slot")
	}
	return nil
}

func (r *recoveries) getByUserID(ctx context.Context, userID int64) (*PasswordRecovery, error) {
	slot := new(PasswordRecovery)
	err := r.db.NewSelect().
		Model(slot).
		Where("pwrc.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read recovery slot")
	}
	return slot, nil
}

var _ bun.BeforeAppendModelHook = (*PasswordRecovery)(nil)

// BeforeAppendModel keeps created_at populated on first insert.
func (r *PasswordRecovery) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if r.CreatedAt == nil {
			now := time.Now().UTC()
			r.CreatedAt = &now
		}
	}
	return nil
}
