package util

import (
	"html"
	"strings"
)

// SanitizeInput trims surrounding whitespace and escapes HTML so profile
// fields can be echoed back safely.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// NormalizeEmail lower-cases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContainsSuspicious flags script-like fragments in free-form text.
func ContainsSuspicious(s string) bool {
	lowered := strings.ToLower(s)
	for _, c := range []string{"<script", "javascript:", "onerror=", "onload="} {
		if strings.Contains(lowered, c) {
			return true
		}
	}
	return false
}

// MaskPhone keeps the last four digits of a phone number for log output.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskToken keeps the last six characters of a device token.
func MaskToken(token string) string {
	if len(token) <= 6 {
		return "******"
	}
	return "******" + token[len(token)-6:]
}
