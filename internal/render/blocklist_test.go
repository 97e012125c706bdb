package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocklist_BlocksURL(t *testing.T) {
	t.Parallel()

	b := NewBlocklist([]string{"*.tracker.example", "metrics.internal"})

	cases := []struct {
		name    string
		url     string
		blocked bool
	}{
		{"default host exact", "https://doubleclick.net/ads", true},
		{"default host subdomain", "https://ad.doubleclick.net/pixel", true},
		{"extra wildcard host", "https://a.b.tracker.example/x", true},
		{"extra exact host", "http://metrics.internal/collect", true},
		{"unrelated host", "https://example.com/page", false},
		{"suffix lookalike", "https://notdoubleclick.net/", false},
		{"unparseable", "://nope", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.blocked, b.BlocksURL(tc.url))
		})
	}
}

func TestBlocklist_BlocksResourceType(t *testing.T) {
	t.Parallel()

	b := NewBlocklist(nil)
	require.True(t, b.BlocksResourceType("Image"))
	require.True(t, b.BlocksResourceType("Stylesheet"))
	require.True(t, b.BlocksResourceType("Font"))
	require.False(t, b.BlocksResourceType("Document"))
	require.False(t, b.BlocksResourceType("Script"))
	require.False(t, b.BlocksResourceType("XHR"))
}

func TestBlocklist_NilSafe(t *testing.T) {
	t.Parallel()

	var b *Blocklist
	require.False(t, b.BlocksURL("https://doubleclick.net/"))
}
