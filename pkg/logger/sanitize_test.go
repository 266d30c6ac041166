package logger_test

import (
	"testing"

	"github.com/BradenHooton/warden/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@mail.example.org", "a@****.*******.org"},
		{"bob@localhost", "b**@localhost"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"a@b@c", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.SanitizedEmail(tt.in))
		})
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "eyJhbG...", logger.MaskToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
	assert.Equal(t, "[REDACTED]", logger.MaskToken("short"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", logger.RedactedAttr("k", "v", "production").Value.String())
	assert.Equal(t, "v", logger.RedactedAttr("k", "v", "development").Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.False(t, logger.SanitizeQueryString(""))
	assert.False(t, logger.SanitizeQueryString("limit=10&type=failed_login"))
	assert.True(t, logger.SanitizeQueryString("limit=10&Token=abc"))
	assert.True(t, logger.SanitizeQueryString("user_email=a@b.com"))
	assert.True(t, logger.SanitizeQueryString("bad=%zz"))
}
