package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCrawler() *HTTPCrawler {
	return NewHTTPCrawler(CrawlerConfig{RatePerSecond: 1000}, zerolog.Nop())
}

func TestCrawlerExtractsHTMLText(t *testing.T) {
	page := `<html>
<head><title>Paper</title><style>body { color: red }</style></head>
<body>
  <nav>Home | About</nav>
  <header>Site header</header>
  <script>var x = 1;</script>
  <article>
    <h1>Aggregation Theory</h1>
    <p>Value has shifted away from companies that control distribution.</p>
  </article>
  <footer>Copyright</footer>
</body>
</html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	text, chars, err := testCrawler().FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, len(text), chars)

	assert.Contains(t, text, "Aggregation Theory")
	assert.Contains(t, text, "Value has shifted away")
	// Chrome and non-content elements are stripped.
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Site header")
	assert.NotContains(t, text, "var x = 1")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "color: red")
}

func TestCrawlerPassesThroughPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("just plain text"))
	}))
	defer srv.Close()

	text, chars, err := testCrawler().FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "just plain text", text)
	assert.Equal(t, 15, chars)
}

func TestCrawlerRejectsUnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50})
	}))
	defer srv.Close()

	_, _, err := testCrawler().FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrBadRequest, ClassOf(err))
}

func TestCrawlerDoesNotRetryNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := testCrawler().FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
