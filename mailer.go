package accounts

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// LogMailer writes recovery notifications to the configured logger instead
// of an SMTP relay. It is the default delivery collaborator for local
// development and tests.
type LogMailer struct {
	logger Logger
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendRecoveryEmail(ctx context.Context, user *User, token string) error {
	if user == nil || user.Email == "" {
		return goerrors.New("recovery email has no destination", goerrors.CategoryBadInput)
	}

	m.logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	m.logger.Info("to: %s", user.Email)
	m.logger.Info("link: /password-recovery/redeem?token=%s", token)

	return nil
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, user *User, token string) error

func (f MailerFunc) SendRecoveryEmail(ctx context.Context, user *User, token string) error {
	if f == nil {
		return fmt.Errorf("mailer func is nil")
	}
	return f(ctx, user, token)
}
