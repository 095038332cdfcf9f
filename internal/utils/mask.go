package utils

// MaskSecret keeps the last four characters of a token for display. Short
// or empty secrets are fully masked.
func MaskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "********"
	}
	return "********" + s[len(s)-4:]
}
