package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Dispatcher delivers the verification code to a freshly registered user.
// Implementations make a single attempt and never retry.
type Dispatcher interface {
	SendVerification(ctx context.Context, toEmail, toName, code string) error
}

// Dispatch failure classes. Transport errors are wrapped around one of these.
var (
	ErrAuthenticationFailed = errors.New("mail transport rejected credentials")
	ErrTransportUnavailable = errors.New("mail transport unavailable")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
)

func parseRecipient(toEmail string) (string, error) {
	toEmail = strings.TrimSpace(toEmail)
	if toEmail == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidRecipient)
	}
	addr, err := mail.ParseAddress(toEmail)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	return addr.Address, nil
}
