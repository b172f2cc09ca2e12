// Package validate holds the pure checks that gate every state change made
// on behalf of a client: the room whitelist, username shape, and chat text
// sanitization.
package validate

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// MaxUsernameLength is the longest accepted username, in characters.
	MaxUsernameLength = 50
	// MaxMessageLength is the length chat text is truncated to, in characters.
	MaxMessageLength = 1000
)

var (
	ErrUnknownRoom     = errors.New("room is not in the whitelist")
	ErrInvalidUsername = errors.New("username must be 1-50 characters")
	ErrEmptyMessage    = errors.New("message text is empty")
)

// Whitelist is the immutable set of room names a server accepts.
type Whitelist struct {
	names []string
	set   map[string]struct{}
}

// NewWhitelist builds a whitelist from names. Blank and duplicate names are
// skipped; the remaining order is kept.
func NewWhitelist(names ...string) Whitelist {
	w := Whitelist{set: make(map[string]struct{}, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := w.set[name]; dup {
			continue
		}
		w.set[name] = struct{}{}
		w.names = append(w.names, name)
	}
	return w
}

// Contains reports whether name is a whitelisted room.
func (w Whitelist) Contains(name string) bool {
	_, ok := w.set[name]
	return ok
}

// Names returns a copy of the whitelisted room names.
func (w Whitelist) Names() []string {
	return append([]string(nil), w.names...)
}

// Len returns the number of rooms.
func (w Whitelist) Len() int {
	return len(w.names)
}

// IsValidRoom reports whether name belongs to w.
func IsValidRoom(w Whitelist, name string) bool {
	return w.Contains(name)
}

// IsValidUsername reports whether u, once trimmed, is non-empty and at most
// MaxUsernameLength characters.
func IsValidUsername(u string) bool {
	trimmed := strings.TrimSpace(u)
	if trimmed == "" {
		return false
	}
	return utf8.RuneCountInString(trimmed) <= MaxUsernameLength
}

// Username returns the trimmed username or ErrInvalidUsername.
func Username(u string) (string, error) {
	if !IsValidUsername(u) {
		return "", ErrInvalidUsername
	}
	return strings.TrimSpace(u), nil
}

// SanitizeMessage trims text and truncates it to MaxMessageLength
// characters. The result may be empty.
func SanitizeMessage(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxMessageLength])
}

// Message sanitizes text and returns ErrEmptyMessage when nothing is left.
func Message(text string) (string, error) {
	clean := SanitizeMessage(text)
	if clean == "" {
		return "", ErrEmptyMessage
	}
	return clean, nil
}
