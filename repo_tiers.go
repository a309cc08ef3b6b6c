package accounts

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Tiers resolves permission tier rows. Reads go through a small cache
// since the table is seed data that never changes at runtime.
type Tiers interface {
	TierStore
	List(ctx context.Context) ([]*PermissionTier, error)
}

type tiers struct {
	db *bun.DB

	mu    sync.RWMutex
	cache map[string]*PermissionTier
}

var _ Tiers = (*tiers)(nil)

// NewTiersRepository returns a bun-backed Tiers repository.
func NewTiersRepository(db *bun.DB) Tiers {
	return &tiers{
		db:    db,
		cache: map[string]*PermissionTier{},
	}
}

func (t *tiers) GetTierByName(ctx context.Context, name string) (*PermissionTier, error) {
	t.mu.RLock()
	cached, ok := t.cache[name]
	t.mu.RUnlock()
	if ok {
		return cached, nil
	}

	tier := new(PermissionTier)
	err := t.db.NewSelect().
		Model(tier).
		Where("tier.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerrors.New("permission tier not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeUnknownTier).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up permission tier")
	}

	t.mu.Lock()
	t.cache[name] = tier
	t.mu.Unlock()

	return tier, nil
}

func (t *tiers) List(ctx context.Context) ([]*PermissionTier, error) {
	var rows []*PermissionTier
	err := t.db.NewSelect().
		Model(&rows).
		Order("tier.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list permission tiers")
	}
	return rows, nil
}
