package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	// Keep only the TLD
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return local + "@" + strings.Join(labels, ".")
}

// MaskToken keeps a short prefix of a bearer credential for correlation
func MaskToken(token string) string {
	const keep = 6
	if len(token) <= keep*2 {
		return "[REDACTED]"
	}
	return token[:keep] + "..."
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = map[string]bool{
	"password":  true,
	"token":     true,
	"secret":    true,
	"api_key":   true,
	"apikey":    true,
	"email":     true,
	"auth":      true,
	"principal": true,
}

// SanitizeQueryString reports whether a query string carries a sensitive
// parameter and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries are redacted
		return true
	}
	for key := range values {
		k := strings.ToLower(key)
		for param := range sensitiveParams {
			if strings.Contains(k, param) {
				return true
			}
		}
	}
	return false
}
