package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxEventSize is 4KB (conservative default)
	DefaultMaxEventSize = 4096
	// EnvMaxEventSize is the environment variable to override the default
	EnvMaxEventSize = "PLOTLINK_MAX_EVENT_SIZE"
)

// SanitizeEventText cleans inbound event text by enforcing size limits,
// validating UTF-8, and stripping control characters.
func SanitizeEventText(text string) (string, error) {
	return SanitizeEventTextLimit(text, 0)
}

// SanitizeEventTextLimit is SanitizeEventText with an explicit size limit.
// A non-positive limit falls back to the environment or DefaultMaxEventSize.
func SanitizeEventTextLimit(text string, limit int) (string, error) {
	if limit <= 0 {
		limit = maxEventSize()
	}
	if len(text) > limit {
		// Rejected rather than truncated so a partial coordinate never reaches the surface.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(text), limit)
	}

	if !utf8.ValidString(text) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range text {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxEventSize() int {
	if val := os.Getenv(EnvMaxEventSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxEventSize
}
