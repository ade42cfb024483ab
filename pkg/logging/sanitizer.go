package logging

import (
	"regexp"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
	// MaxPreviewLength bounds column descriptions and embedding inputs in logs
	MaxPreviewLength = 80
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx in key/value connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches the password half of user:pass@host in URLs; the user name is kept
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]+):[^\s]+@([^@/\s]+)`)

	// Matches OpenAI-style secret keys and bearer tokens echoed back by providers
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`)
	bearerPattern    = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
)

// SanitizeConnectionString removes passwords from snapshot store connection
// strings. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return urlPasswordPattern.ReplaceAllString(sanitized, "${1}:"+RedactedText+"@${2}")
}

// SanitizeError renders err with credentials and API keys removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := SanitizeConnectionString(err.Error())
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	return bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
}

// Preview shortens s to MaxPreviewLength runes for log fields.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= MaxPreviewLength {
		return s
	}
	return string(r[:MaxPreviewLength]) + "..."
}
