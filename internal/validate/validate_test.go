package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitelist(t *testing.T) {
	w := NewWhitelist("general", " random ", "", "general", "tech")

	assert.Equal(t, []string{"general", "random", "tech"}, w.Names())
	assert.Equal(t, 3, w.Len())
	assert.True(t, IsValidRoom(w, "random"))
	assert.False(t, IsValidRoom(w, "Random"))
	assert.False(t, IsValidRoom(w, ""))
	assert.False(t, IsValidRoom(w, "lobby"))

	names := w.Names()
	names[0] = "mutated"
	assert.True(t, w.Contains("general"), "Names must return a copy")
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "alice", true},
		{"padded", "  bob  ", true},
		{"empty", "", false},
		{"whitespace only", " \t\n", false},
		{"exactly fifty", strings.Repeat("a", 50), true},
		{"fifty one", strings.Repeat("a", 51), false},
		{"fifty with padding", "  " + strings.Repeat("a", 50) + "  ", true},
		{"multibyte fifty", strings.Repeat("é", 50), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidUsername(tt.input))
		})
	}
}

func TestUsernameTrims(t *testing.T) {
	got, err := Username("  carol ")
	require.NoError(t, err)
	assert.Equal(t, "carol", got)

	_, err = Username("   ")
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestSanitizeMessage(t *testing.T) {
	t.Run("truncates to limit", func(t *testing.T) {
		got := SanitizeMessage(strings.Repeat("x", 1500))
		assert.Len(t, got, MaxMessageLength)
	})

	t.Run("trims before truncating", func(t *testing.T) {
		got := SanitizeMessage("   " + strings.Repeat("y", 1000) + "   ")
		assert.Equal(t, strings.Repeat("y", 1000), got)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		got := SanitizeMessage(strings.Repeat("ж", 1200))
		assert.Equal(t, 1000, len([]rune(got)))
	})

	t.Run("whitespace only becomes empty", func(t *testing.T) {
		assert.Empty(t, SanitizeMessage(" \n\t "))
		_, err := Message(" \n\t ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("short text unchanged", func(t *testing.T) {
		got, err := Message(" hello ")
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
	})
}
