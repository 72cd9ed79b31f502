package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		base   string
		policy QueryPolicy
		want   string
		ok     bool
	}{
		{name: "lowercases scheme and host", raw: "HTTPS://Example.COM/Path", want: "https://example.com/Path", ok: true},
		{name: "strips fragment", raw: "https://example.com/a#section", want: "https://example.com/a", ok: true},
		{name: "strips trailing slash", raw: "https://example.com/a/", want: "https://example.com/a", ok: true},
		{name: "keeps root slash", raw: "https://example.com/", want: "https://example.com/", ok: true},
		{name: "adds root slash", raw: "https://example.com", want: "https://example.com/", ok: true},
		{name: "drops default port", raw: "http://example.com:80/a", want: "http://example.com/a", ok: true},
		{name: "keeps custom port", raw: "http://example.com:8080/a", want: "http://example.com:8080/a", ok: true},
		{name: "resolves relative", raw: "../b/", base: "https://example.com/a/c/", want: "https://example.com/a/b", ok: true},
		{name: "resolves root relative", raw: "/x?y=1", base: "https://example.com/a", want: "https://example.com/x?y=1", ok: true},
		{name: "preserves query", raw: "https://example.com/go?url=https%3A%2F%2Ft.com&b=2", want: "https://example.com/go?url=https%3A%2F%2Ft.com&b=2", ok: true},
		{name: "strips tracking params", raw: "https://example.com/p?utm_source=x&b=2&fbclid=abc&a=1", policy: QueryStripTracking, want: "https://example.com/p?a=1&b=2", ok: true},
		{name: "rejects mailto", raw: "mailto:someone@example.com", ok: false},
		{name: "rejects javascript", raw: "javascript:void(0)", base: "https://example.com", ok: false},
		{name: "rejects empty", raw: "   ", ok: false},
		{name: "rejects garbage", raw: "http://[::1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeURL(tt.raw, tt.base, tt.policy)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.com/a/b/?q=1#frag",
		"http://example.com:80",
		"https://example.com/go?url=https%3A%2F%2Ftarget.com%2F&x=",
		"https://example.com/%7Euser/",
		"https://[::1]:8443/path/",
		"https://example.com/a?",
	}
	for _, policy := range []QueryPolicy{QueryPreserve, QueryStripTracking} {
		for _, in := range inputs {
			once, ok := NormalizeURL(in, "", policy)
			require.True(t, ok, in)
			twice, ok := NormalizeURL(once, "", policy)
			require.True(t, ok, once)
			assert.Equal(t, once, twice, in)
			assert.NotContains(t, once, "#")
		}
	}
}

func TestHashURL(t *testing.T) {
	a := HashURL("https://example.com/a")
	assert.Len(t, a, 32)
	assert.Equal(t, a, HashURL("https://example.com/a"))
	assert.NotEqual(t, a, HashURL("https://example.com/b"))
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.co.uk", RegistrableDomain("blog.example.co.uk"))
	assert.Equal(t, "example.com", RegistrableDomain("WWW.Example.com"))
	assert.Equal(t, "127.0.0.1", RegistrableDomain("127.0.0.1"))
}

func TestHostMatches(t *testing.T) {
	assert.True(t, HostMatches("bit.ly", "bit.ly"))
	assert.True(t, HostMatches("m.bit.ly", "bit.ly"))
	assert.False(t, HostMatches("notbit.ly", "bit.ly"))
	assert.False(t, HostMatches("", "bit.ly"))
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("a ", 200) + "GoWithGuide" + strings.Repeat(" b", 200)
	s := Snippet(text, "gowithguide", 60)
	assert.Contains(t, s, "GoWithGuide")
	assert.LessOrEqual(t, len(s), 60)

	assert.Equal(t, "short text", Snippet("short   text", "missing", 60))
	assert.Equal(t, "", Snippet("", "x", 60))
}

func TestTruncateTextKeepsRunes(t *testing.T) {
	s := TruncateText("héllo", 2)
	assert.Equal(t, "h", s)
}
