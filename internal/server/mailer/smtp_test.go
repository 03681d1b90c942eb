package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func stubSendMail(t *testing.T, err error) *[]sentMail {
	t.Helper()
	var sent []sentMail
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return err
	}
	t.Cleanup(func() { sendMail = orig })
	return &sent
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{})
	assert.Error(t, err, "host required")

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err, "sender required")

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "bot@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", m.cfg.From, "user doubles as sender")
	assert.NotNil(t, m.auth)
}

func TestSMTPMailer_Send(t *testing.T) {
	sent := stubSendMail(t, nil)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com"})
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, m.Send(context.Background(), "a@x.com", "Verify your account", "Your OTP is 482913"))

	require.Len(t, *sent, 1)
	got := (*sent)[0]
	assert.Equal(t, "smtp.example.com:2525", got.addr)
	assert.Nil(t, got.auth, "no auth without a user")
	assert.Equal(t, "noreply@example.com", got.from)
	assert.Equal(t, []string{"a@x.com"}, got.to)

	head, body, ok := strings.Cut(got.msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: noreply@example.com\r\n")
	assert.Contains(t, head, "To: a@x.com\r\n")
	assert.Contains(t, head, "Subject: Verify your account\r\n")
	assert.Contains(t, head, "Date: Fri, 01 Mar 2024 12:00:00 +0000\r\n")
	assert.Contains(t, head, "Content-Type: text/plain")
	assert.Equal(t, "Your OTP is 482913", body)
}

func TestSMTPMailer_HeaderInjection(t *testing.T) {
	sent := stubSendMail(t, nil)

	m, err := NewSMTPMailer(SMTPConfig{Host: "h", From: "f@x.com"})
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), "a@x.com", "Hi\r\nBcc: evil@x.com", "b"))
	assert.NotContains(t, (*sent)[0].msg, "\r\nBcc:")
}

func TestSMTPMailer_Errors(t *testing.T) {
	stubSendMail(t, errors.New("550 mailbox unavailable"))

	m, err := NewSMTPMailer(SMTPConfig{Host: "h", From: "f@x.com"})
	require.NoError(t, err)

	err = m.Send(context.Background(), "a@x.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 mailbox unavailable")

	assert.ErrorIs(t, m.Send(context.Background(), "", "s", "b"), ErrNoRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "a@x.com", "s", "b"), context.Canceled)
}
