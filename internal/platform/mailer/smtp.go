package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const boundary = "dutchville-alternative"

type smtpStage string

const (
	stageConnect smtpStage = "connect"
	stageTLS     smtpStage = "starttls"
	stageAuth    smtpStage = "auth"
	stageMail    smtpStage = "mail"
	stageRcpt    smtpStage = "rcpt"
	stageData    smtpStage = "data"
)

// SMTPMailer relays mail through an authenticated SMTP server. Port 465
// uses implicit TLS, every other port upgrades with STARTTLS when offered.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	FromName string
	User     string
	Pass     string
	Renderer Renderer

	tlsConfig *tls.Config
}

func NewSMTPMailer(host string, port int, from, fromName, user, pass string, renderer Renderer) *SMTPMailer {
	host = strings.TrimSpace(host)
	return &SMTPMailer{
		Host:      host,
		Port:      port,
		From:      strings.TrimSpace(from),
		FromName:  fromName,
		User:      strings.TrimSpace(user),
		Pass:      pass,
		Renderer:  renderer,
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
}

func (s *SMTPMailer) SendVerification(ctx context.Context, toEmail, toName, code string) error {
	rcpt, err := parseRecipient(toEmail)
	if err != nil {
		return err
	}

	msg, err := s.Renderer.Verification(toName, code)
	if err != nil {
		return err
	}

	body, err := s.compose(rcpt, msg)
	if err != nil {
		return err
	}

	return s.deliver(ctx, rcpt, body)
}

func (s *SMTPMailer) compose(rcpt string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	from := mail.Address{Name: s.FromName, Address: s.From}

	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", rcpt)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", p.contentType)
		fmt.Fprintf(&buf, "Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		qp := quotedprintable.NewWriter(&buf)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		fmt.Fprintf(&buf, "\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func (s *SMTPMailer) deliver(ctx context.Context, rcpt string, body []byte) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	implicitTLS := s.Port == 465

	var (
		conn net.Conn
		err  error
	)
	dialer := &net.Dialer{}
	if implicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return classifySMTPError(stageConnect, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// net/smtp has no context support; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return classifySMTPError(stageConnect, err)
	}
	defer c.Close()

	if !implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig); err != nil {
				return classifySMTPError(stageTLS, err)
			}
		}
	}

	if s.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.User, s.Pass, s.Host)); err != nil {
			return classifySMTPError(stageAuth, err)
		}
	}

	if err := c.Mail(s.From); err != nil {
		return classifySMTPError(stageMail, err)
	}
	if err := c.Rcpt(rcpt); err != nil {
		return classifySMTPError(stageRcpt, err)
	}

	w, err := c.Data()
	if err != nil {
		return classifySMTPError(stageData, err)
	}
	if _, err := w.Write(body); err != nil {
		return classifySMTPError(stageData, err)
	}
	if err := w.Close(); err != nil {
		return classifySMTPError(stageData, err)
	}

	// The message is accepted once DATA is closed.
	_ = c.Quit()
	return nil
}

// classifySMTPError maps reply codes and network failures onto the
// dispatch error classes.
func classifySMTPError(stage smtpStage, err error) error {
	kind := ErrTransportUnavailable

	var tpErr *textproto.Error
	switch {
	case errors.As(err, &tpErr):
		switch {
		case tpErr.Code == 530 || tpErr.Code == 534 || tpErr.Code == 535:
			kind = ErrAuthenticationFailed
		case stage == stageAuth && tpErr.Code >= 500:
			kind = ErrAuthenticationFailed
		case stage == stageRcpt && isRecipientRejection(tpErr.Code):
			kind = ErrInvalidRecipient
		}
	case stage == stageAuth:
		// net/smtp refuses PLAIN over an unencrypted link before talking to the server.
		kind = ErrAuthenticationFailed
	}

	return fmt.Errorf("%w: smtp %s: %w", kind, stage, err)
}

func isRecipientRejection(code int) bool {
	switch code {
	case 501, 550, 551, 553:
		return true
	}
	return false
}
