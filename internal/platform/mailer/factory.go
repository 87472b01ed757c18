package mailer

import (
	"fmt"

	"github.com/diagnosis/dutchville-accounts/pkg/config"
)

// New picks the dispatcher for the configured transport. Dev mode wins over
// any transport setting.
func New(cfg config.EmailConfig) (Dispatcher, error) {
	renderer := Renderer{Brand: cfg.FromName, Subject: cfg.Subject}

	if cfg.DevMode {
		return NewDevMailer(), nil
	}

	switch cfg.Transport {
	case config.TransportSMTP:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPEmail, cfg.FromName, cfg.SMTPEmail, cfg.SMTPPass, renderer), nil
	case config.TransportMailerSend:
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPEmail, renderer), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", cfg.Transport)
	}
}
