package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"HTTP://Example.com", "not a url", " ", "http://localhost:4000"}, zerolog.Nop())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "http://localhost:4000", true},
		{"case insensitive", "http://EXAMPLE.com", true},
		{"different port", "http://localhost:4001", false},
		{"different scheme", "https://example.com", false},
		{"missing origin", "", false},
		{"garbage origin", "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(r))
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, policy.allows(r), "wildcard admits clients without an Origin header")

	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, policy.allows(r))
}

func TestOriginPolicyEmpty(t *testing.T) {
	policy := newOriginPolicy(nil, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:4000")
	assert.False(t, policy.allows(r))
}
