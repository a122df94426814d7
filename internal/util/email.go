package util

import "strings"

// NormalizeEmail lowercases and trims an address so email lookups are
// case-insensitive everywhere (signup, login, webhook buyer resolution).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
