package sanitize

import "regexp"

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +91..., 98xxx xxxxx, (xxx) xxx-xxxx.
// Only digits, spaces, dashes, dots, parentheses and plus are allowed, and the
// match must be at least 9 characters so house numbers and ward ids survive.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.()]{7,}\d`)

// RedactPII masks emails and phone numbers in text shown on public pages.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary cuts s to at most max bytes on a word boundary.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}
