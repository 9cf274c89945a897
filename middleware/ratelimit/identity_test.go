package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIdentityFunc_APIKeyIsAuthenticated(t *testing.T) {
	fn := DefaultIdentityFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	id := fn(r)
	assert.True(t, id.Authenticated)
	assert.Equal(t, hashIdentifier("key", "client-123"), id.ID)
	assert.Len(t, id.ID, 32)
	assert.NotContains(t, id.ID, "client-123", "raw credentials must not leak into keys")
}

func TestDefaultIdentityFunc_AnonymousUsesClientIP(t *testing.T) {
	fn := DefaultIdentityFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"

	id := fn(r)
	assert.False(t, id.Authenticated)
	assert.Equal(t, hashIdentifier("ip", "10.0.0.9"), id.ID)
}

func TestDefaultIdentityFunc_KeyAndIPNeverCollide(t *testing.T) {
	fn := DefaultIdentityFunc("", false)

	withKey := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	withKey.Header.Set(DefaultAPIKeyHeader, "10.0.0.9")
	anon := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	anon.RemoteAddr = "10.0.0.9:5555"

	assert.NotEqual(t, fn(withKey).ID, fn(anon).ID)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		xff      string
		trustXFF bool
		want     string
	}{
		{name: "first XFF when trusted", remote: "10.0.0.9:5555", xff: "1.2.3.4, 5.6.7.8", trustXFF: true, want: "1.2.3.4"},
		{name: "XFF ignored when untrusted", remote: "10.0.0.9:5555", xff: "1.2.3.4", want: "10.0.0.9"},
		{name: "remote addr without port", remote: "10.0.0.9", want: "10.0.0.9"},
		{name: "empty XFF entry falls back", remote: "10.0.0.9:5555", xff: " , 5.6.7.8", trustXFF: true, want: "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustXFF))
		})
	}
}
