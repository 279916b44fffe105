package webquery_test

import (
	"testing"

	"github.com/fwojciec/webquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/Docs", "https://example.com/Docs"},
		{"lowercases scheme", "HTTPS://example.com/", "https://example.com/"},
		{"strips fragment", "https://example.com/page#section-2", "https://example.com/page"},
		{"strips default https port", "https://example.com:443/page", "https://example.com/page"},
		{"strips default http port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps non-default port", "https://example.com:8443/page", "https://example.com:8443/page"},
		{"adds root path", "https://example.com", "https://example.com/"},
		{"keeps query string", "https://example.com/search?q=go&page=2", "https://example.com/search?q=go&page=2"},
		{"trims surrounding whitespace", "  https://example.com/  ", "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := webquery.NormalizeURL(tt.in)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects unsupported scheme", func(t *testing.T) {
		t.Parallel()

		_, err := webquery.NormalizeURL("ftp://example.com/file")

		require.Error(t, err)
		assert.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
	})

	t.Run("rejects missing host", func(t *testing.T) {
		t.Parallel()

		_, err := webquery.NormalizeURL("https:///path-only")

		require.Error(t, err)
		assert.Equal(t, webquery.EINVALID, webquery.ErrorCode(err))
	})
}
