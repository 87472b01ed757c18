package mailer

import (
	"context"
	"errors"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Verification(t *testing.T) {
	t.Parallel()

	r := Renderer{Brand: "Dutchville", Subject: "Dutchville Account Verification"}
	msg, err := r.Verification("Ann <script>", "aB3xY9")
	require.NoError(t, err)

	assert.Equal(t, "Dutchville Account Verification", msg.Subject)
	assert.Contains(t, msg.HTML, ">aB3xY9</h1>", "code is visible as plain text")
	assert.Contains(t, msg.HTML, "Ann &lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "Welcome to Dutchville!")
	assert.Contains(t, msg.Text, "aB3xY9")
}

func TestParseRecipient(t *testing.T) {
	t.Parallel()

	addr, err := parseRecipient("  a@x.com ")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", addr)

	for _, bad := range []string{"", "   ", "not-an-address", "a@b@c"} {
		_, err := parseRecipient(bad)
		assert.ErrorIs(t, err, ErrInvalidRecipient, bad)
	}
}

func TestClassifySMTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stage smtpStage
		err   error
		want  error
	}{
		{"bad credentials", stageAuth, &textproto.Error{Code: 535, Msg: "5.7.8 bad credentials"}, ErrAuthenticationFailed},
		{"auth required on mail", stageMail, &textproto.Error{Code: 530, Msg: "5.7.0 auth required"}, ErrAuthenticationFailed},
		{"plain over cleartext", stageAuth, errors.New("unencrypted connection"), ErrAuthenticationFailed},
		{"unknown mailbox", stageRcpt, &textproto.Error{Code: 550, Msg: "5.1.1 no such user"}, ErrInvalidRecipient},
		{"bad recipient syntax", stageRcpt, &textproto.Error{Code: 553, Msg: "5.1.3 bad address"}, ErrInvalidRecipient},
		{"greylisted", stageRcpt, &textproto.Error{Code: 451, Msg: "4.7.1 try later"}, ErrTransportUnavailable},
		{"dial failure", stageConnect, errors.New("connection refused"), ErrTransportUnavailable},
		{"server shutting down", stageData, &textproto.Error{Code: 421, Msg: "closing"}, ErrTransportUnavailable},
		{"sender rejected", stageMail, &textproto.Error{Code: 550, Msg: "sender denied"}, ErrTransportUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySMTPError(tt.stage, tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "underlying error stays in the chain")
		})
	}
}

func TestClassifyMailerSendResult(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classifyMailerSendResult(202, nil))
	assert.ErrorIs(t, classifyMailerSendResult(401, errors.New("unauthorized")), ErrAuthenticationFailed)
	assert.ErrorIs(t, classifyMailerSendResult(403, nil), ErrAuthenticationFailed)
	assert.ErrorIs(t, classifyMailerSendResult(422, errors.New("invalid to")), ErrInvalidRecipient)
	assert.ErrorIs(t, classifyMailerSendResult(429, errors.New("slow down")), ErrTransportUnavailable)
	assert.ErrorIs(t, classifyMailerSendResult(0, context.DeadlineExceeded), ErrTransportUnavailable)
	assert.ErrorIs(t, classifyMailerSendResult(0, context.DeadlineExceeded), context.DeadlineExceeded)
	assert.ErrorIs(t, classifyMailerSendResult(500, nil), ErrTransportUnavailable)
}

func TestDevMailer(t *testing.T) {
	t.Parallel()

	d := NewDevMailer()
	assert.NoError(t, d.SendVerification(context.Background(), "a@x.com", "A", "abc123"))
	assert.ErrorIs(t, d.SendVerification(context.Background(), "nope", "A", "abc123"), ErrInvalidRecipient)
}
