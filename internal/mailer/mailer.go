// Package mailer sends the transactional emails of the account flows.
package mailer

import (
	"context"

	"github.com/ammar1510/chatty/internal/logger"
)

var log = logger.New("mailer")

// Mailer is what the account service needs from an email provider
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
	SendPasswordReset(ctx context.Context, to, link string) error
	SendPasswordResetSuccess(ctx context.Context, to string) error
}

// LogMailer writes emails to the log instead of sending them. Used when no
// provider key is configured.
type LogMailer struct{}

func (LogMailer) SendVerificationCode(_ context.Context, to, code string) error {
	log.Info("Verification code for %s: %s", to, code)
	return nil
}

func (LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	log.Info("Password reset link for %s: %s", to, link)
	return nil
}

func (LogMailer) SendPasswordResetSuccess(_ context.Context, to string) error {
	log.Info("Password reset confirmation for %s", to)
	return nil
}
