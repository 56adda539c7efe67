package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
		ok     bool
	}{
		{"plain origin", "http://chat.example.com", "http://chat.example.com", true},
		{"uppercase folded", "HTTP://CHAT.EXAMPLE.COM", "http://chat.example.com", true},
		{"port preserved", "https://chat.example.com:8443", "https://chat.example.com:8443", true},
		{"missing scheme", "chat.example.com", "", false},
		{"scheme only", "http://", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := canonicalOrigin(tc.origin)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompileOriginList(t *testing.T) {
	compiled, wildcard := compileOriginList([]string{
		" http://chat.example.com ",
		"",
		"not a url",
		"HTTPS://Other.Example.com",
	})

	assert.False(t, wildcard)
	assert.Equal(t, []string{"http://chat.example.com", "https://other.example.com"}, compiled)

	compiled, wildcard = compileOriginList([]string{"*", "http://chat.example.com"})
	assert.True(t, wildcard)
	assert.Equal(t, []string{"http://chat.example.com"}, compiled)
}

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckOriginAgainstAllowList(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{AllowedOrigins: []string{"http://chat.example.com"}})

	assert.True(t, checkOrigin(originRequest("http://chat.example.com")))
	assert.True(t, checkOrigin(originRequest("HTTP://CHAT.EXAMPLE.COM")))
	assert.False(t, checkOrigin(originRequest("http://evil.example.com")))
	assert.False(t, checkOrigin(originRequest("not a url")))
	assert.False(t, checkOrigin(originRequest("")))
}

func TestCheckOriginWildcard(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	assert.True(t, checkOrigin(originRequest("http://anywhere.example.com")))

	// The wildcard still requires a well-formed Origin header.
	assert.False(t, checkOrigin(originRequest("")))
	assert.False(t, checkOrigin(originRequest("not a url")))
}
