package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.Error(t, ValidateEmail("alice@"))
	assert.Error(t, ValidateEmail(""))
}

func TestValidateRecipient(t *testing.T) {
	tests := []struct {
		name      string
		channel   string
		recipient string
		wantErr   bool
	}{
		{"telegram user", "telegram", "100500", false},
		{"telegram group", "telegram", "-1001234567890", false},
		{"telegram username", "telegram", "@alice", true},
		{"lark open id", "lark", "ou_7d8a6e6df7621556ce0d21922b676706ccs", false},
		{"lark email receive type", "lark", "alice@example.com", false},
		{"whitespace", "lark", "ou_1 2", true},
		{"empty", "telegram", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecipient(tt.channel, tt.recipient)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Alice Smith", SanitizeString("  Alice\x00 Smith\n"))
	assert.Len(t, []rune(SanitizeString(strings.Repeat("я", 300))), 128)
}
