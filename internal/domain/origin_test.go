package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		input string
		want  Origin
	}{
		{"http://host1:1/", "http://host1:1"},
		{"HTTPS://Example.COM/path?q=1#frag", "https://example.com"},
		{"chrome-extension://abcdefghijklmnopqrstuvwxyz/", "chrome-extension://abcdefghijklmnopqrstuvwxyz"},
		{"https://example.com:443/login", "https://example.com"},
		{"http://example.com:80", "http://example.com"},
		{"http://example.com:443", "http://example.com:443"},
		{"https://example.com:8443", "https://example.com:8443"},
		{"http://[::1]:8080/x", "http://[::1]:8080"},
		{"https://[2001:DB8::1]:443/", "https://[2001:db8::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOrigin(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOrigin_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "host-only", "/relative/path", "http://%zz", "http://:8080"} {
		_, err := ParseOrigin(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidOrigin), in)
	}
}

func TestOrigin_Parts(t *testing.T) {
	o := MustParseOrigin("http://host3:3/")
	assert.Equal(t, "http", o.Scheme())
	assert.Equal(t, "host3", o.Host())
	assert.True(t, o.IsWeb())
	assert.False(t, o.IsExtension())
	assert.False(t, o.IsDevTools())

	assert.True(t, MustParseOrigin("chrome-extension://abc/").IsExtension())
	assert.Equal(t, "abc", MustParseOrigin("chrome-extension://abc/").Host())
	assert.True(t, MustParseOrigin("chrome-devtools://devtools/").IsDevTools())
	assert.True(t, Origin("").IsZero())
}

func TestOrigin_HostIPv6(t *testing.T) {
	tests := map[string]string{
		"http://[::1]:8080":       "::1",
		"https://[2001:db8::1]/":  "2001:db8::1",
		"https://example.com:443": "example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, MustParseOrigin(in).Host(), in)
	}
	assert.Equal(t, "", Origin("").Host())
}

func TestParseOrigin_DefaultPortEqualsBare(t *testing.T) {
	assert.Equal(t, MustParseOrigin("https://example.com"), MustParseOrigin("HTTPS://example.com:443/"))
	assert.NotEqual(t, MustParseOrigin("https://example.com"), MustParseOrigin("https://example.com:444"))
}

func TestMustParseOrigin_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParseOrigin("not an origin") })
}

func TestOriginScope(t *testing.T) {
	assert.True(t, ScopeAll.Has(ScopeUnprotectedWeb))
	assert.True(t, ScopeAll.Has(ScopeProtectedWeb))
	assert.False(t, ScopeUnprotectedWeb.Has(ScopeProtectedWeb))
	assert.Equal(t, "all", ScopeAll.String())
	assert.Equal(t, "none", OriginScope(0).String())

	s, err := ParseOriginScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeUnprotectedWeb, s)

	s, err = ParseOriginScope("Protected_Web")
	require.NoError(t, err)
	assert.Equal(t, ScopeProtectedWeb, s)

	_, err = ParseOriginScope("extensions")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
