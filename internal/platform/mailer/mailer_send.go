package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/diagnosis/dutchville-accounts/pkg/logger"
	"github.com/mailersend/mailersend-go"
)

// MailerSendClient delivers through the MailerSend HTTP API.
type MailerSendClient struct {
	client   *mailersend.Mailersend
	from     mailersend.From
	renderer Renderer
}

func NewMailerSend(apiKey, fromName, fromEmail string, renderer Renderer) *MailerSendClient {
	return &MailerSendClient{
		client: mailersend.NewMailersend(apiKey),
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		renderer: renderer,
	}
}

func (m *MailerSendClient) SendVerification(ctx context.Context, toEmail, toName, code string) error {
	rcpt, err := parseRecipient(toEmail)
	if err != nil {
		return err
	}

	msg, err := m.renderer.Verification(toName, code)
	if err != nil {
		return err
	}

	email := m.client.Email.NewMessage()
	email.SetFrom(m.from)
	email.SetRecipients([]mailersend.Recipient{{Name: toName, Email: rcpt}})
	email.SetSubject(msg.Subject)
	email.SetText(msg.Text)
	email.SetHTML(msg.HTML)

	res, err := m.client.Email.Send(ctx, email)
	status := 0
	if res != nil && res.Response != nil {
		defer res.Body.Close()
		status = res.StatusCode
		logger.DebugContext(ctx, "mailersend response", "status", status, "message_id", res.Header.Get("X-Message-Id"))
	}
	return classifyMailerSendResult(status, err)
}

func classifyMailerSendResult(status int, err error) error {
	switch {
	case err == nil && status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: mailersend status %d", ErrAuthenticationFailed, status)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: mailersend status %d", ErrInvalidRecipient, status)
	case err != nil:
		return fmt.Errorf("%w: mailersend: %w", ErrTransportUnavailable, err)
	default:
		return fmt.Errorf("%w: mailersend status %d", ErrTransportUnavailable, status)
	}
}
