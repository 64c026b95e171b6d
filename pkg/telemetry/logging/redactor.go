package logging

import (
	"regexp"
	"strings"
)

// bearerPattern matches "Bearer <token>" sequences embedded in strings, such
// as echoed headers or upstream error bodies.
var bearerPattern = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// RedactToken redacts a bearer token, keeping only a short prefix for
// correlation across log lines.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}

// RedactEmail redacts an email address partially (shows first char and domain).
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	username := parts[0]
	domain := parts[1]

	if len(username) == 0 {
		return "***@" + domain
	}

	return string(username[0]) + "***@" + domain
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}

// ScrubBearer replaces any embedded "Bearer <token>" sequence in s. Use this
// on strings of upstream origin before logging them.
func ScrubBearer(s string) string {
	return bearerPattern.ReplaceAllString(s, "Bearer ***")
}
