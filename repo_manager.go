package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories over a shared connection.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Recoveries() Recoveries
	Tiers() Tiers
	Activity() ActivitySink
}

type mngr struct {
	db         *bun.DB
	users      Users
	recoveries Recoveries
	tiers      Tiers
	activity   ActivitySink
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:         db,
		users:      NewUsersRepository(db),
		recoveries: NewRecoveriesRepository(db),
		tiers:      NewTiersRepository(db),
		activity:   NewActivityRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.recoveries == nil {
		return errors.New("repository recoveries should be initialized")
	}

	if m.tiers == nil {
		return errors.New("repository tiers should be initialized")
	}

	if m.activity == nil {
		return errors.New("repository activity should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Recoveries() Recoveries {
	return m.recoveries
}

func (m mngr) Tiers() Tiers {
	return m.tiers
}

func (m mngr) Activity() ActivitySink {
	return m.activity
}
