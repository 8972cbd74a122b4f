package email

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithoutCredentialsOnlyLogs(t *testing.T) {
	var buf strings.Builder
	mailer := NewMailer(SMTPConfig{Host: "smtp.invalid", Port: 587}, zerolog.New(&buf))

	require.NoError(t, mailer.Send("1@students.example.edu", "Hello", "body"))
	assert.Contains(t, buf.String(), "email not sent")
	assert.Contains(t, buf.String(), "1@students.example.edu")
}

func TestBuildMessageHeaders(t *testing.T) {
	cfg := SMTPConfig{FromName: "Registrar", FromEmail: "registrar@example.edu"}
	msg := string(buildMessage(cfg, "7@students.example.edu", "Grade posted", "Your grade is A"))

	assert.True(t, strings.HasPrefix(msg, "From: Registrar <registrar@example.edu>\r\n"))
	assert.Contains(t, msg, "To: 7@students.example.edu\r\n")
	assert.Contains(t, msg, "Subject: Grade posted\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nYour grade is A"))
}

func TestConfigured(t *testing.T) {
	assert.False(t, SMTPConfig{Username: "u"}.Configured())
	assert.True(t, SMTPConfig{Username: "u", Password: "p"}.Configured())
}
