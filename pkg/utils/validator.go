package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex       = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	telegramChatRe   = regexp.MustCompile(`^-?[0-9]{1,20}$`)
	controlCharsRe   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	maxDisplayLength = 128
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateRecipient checks that recipient is addressable on the given channel.
// Telegram recipients are numeric chat ids. Lark ids depend on the configured
// receive_id_type and are only checked for whitespace.
func ValidateRecipient(channel, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.ContainsAny(recipient, " \t\r\n") {
		return fmt.Errorf("recipient must not contain whitespace: %q", recipient)
	}

	if channel == "telegram" && !telegramChatRe.MatchString(recipient) {
		return fmt.Errorf("telegram recipient must be a numeric chat id: %s", recipient)
	}
	return nil
}

// SanitizeString removes control characters and caps the length of
// text shown in channel messages
func SanitizeString(s string) string {
	sanitized := strings.TrimSpace(controlCharsRe.ReplaceAllString(s, ""))
	if r := []rune(sanitized); len(r) > maxDisplayLength {
		sanitized = string(r[:maxDisplayLength])
	}
	return sanitized
}
