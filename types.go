package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated account.
type Identity interface {
	ID() int64
	Username() string
	Email() string
	Name() string
	Tier() string
	State() AccountState
}

// Config holds auth options.
type Config interface {
	GetIssuer() string
	GetAudience() []string
	GetTokenExpiration() time.Duration
	GetAuthScheme() string
	GetContextKey() string
}

// UserStore is the account persistence collaborator consumed by the core.
type UserStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateState(ctx context.Context, id int64, state AccountState, until *time.Time) (*User, error)
}

// RecoveryStore owns the single recovery slot per account.
type RecoveryStore interface {
	UpsertRecovery(ctx context.Context, userID int64, token string, expiresAt time.Time) (*PasswordRecovery, error)
	GetRecoveryByToken(ctx context.Context, token string) (*PasswordRecovery, error)
	ClearRecovery(ctx context.Context, userID int64) error
}

// Mailer is the outbound delivery collaborator. Issuance success is
// independent of delivery success.
type Mailer interface {
	SendRecoveryEmail(ctx context.Context, user *User, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
