package mailer

import (
	"context"

	"github.com/diagnosis/dutchville-accounts/pkg/logger"
)

// DevMailer logs the verification code instead of sending it.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerification(ctx context.Context, toEmail, toName, code string) error {
	addr, err := parseRecipient(toEmail)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "[DEV MAIL] verification email",
		"to", addr,
		"name", toName,
		"code", code,
	)
	return nil
}
