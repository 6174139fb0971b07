package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/signalnoise/workbench/internal/metrics"
)

// CrawlerConfig holds reference-fetcher settings.
type CrawlerConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	MaxBodyBytes  int64
	UserAgent     string
}

// HTTPCrawler fetches reference documents and extracts plain text from HTML
// and PDF bodies.
type HTTPCrawler struct {
	cfg     CrawlerConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewHTTPCrawler creates the reference crawler.
func NewHTTPCrawler(cfg CrawlerConfig, logger zerolog.Logger) *HTTPCrawler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 1.0
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 20 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "signalnoise-workbench/1.0"
	}
	return &HTTPCrawler{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		logger:  logger.With().Str("component", "crawler").Logger(),
	}
}

// FetchText downloads url and returns the extracted plain text. Transient
// failures are retried; unsupported content types are not.
func (c *HTTPCrawler) FetchText(ctx context.Context, url string) (string, int, error) {
	var text string
	err := Call(ctx, RetryConfig{Logger: &c.logger, OperationName: "fetch_reference"}, func(ctx context.Context) error {
		var fetchErr error
		text, fetchErr = c.fetchOnce(ctx, url)
		return fetchErr
	})
	if err != nil {
		metrics.ReferenceFetchesTotal.WithLabelValues("error").Inc()
		return "", 0, err
	}
	metrics.ReferenceFetchesTotal.WithLabelValues("ok").Inc()
	c.logger.Info().Str("url", url).Int("chars", len(text)).Msg("Fetched reference content")
	return text, len(text), nil
}

func (c *HTTPCrawler) fetchOnce(ctx context.Context, url string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", Timeout("fetch reference", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", BadRequest("fetch reference", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", Timeout("fetch reference", err)
		}
		return "", Transient("fetch reference", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("reference url returned %d", resp.StatusCode)
		return "", &ProviderError{Class: classifyStatus(resp.StatusCode), Op: "fetch reference", Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return "", Transient("fetch reference", err)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "application/pdf") || strings.HasSuffix(strings.ToLower(url), ".pdf"):
		return extractPDFText(body)
	case strings.Contains(contentType, "text/html"):
		return extractHTMLText(body)
	case strings.Contains(contentType, "text/plain"):
		return string(body), nil
	default:
		return "", BadRequest("fetch reference",
			fmt.Errorf("unsupported content type %q", contentType))
	}
}

// extractPDFText pulls plain text out of a PDF body.
func extractPDFText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", BadRequest("extract pdf", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)
		}
	}
	return sb.String(), nil
}

// skipTags are elements whose text is navigation chrome, not content.
var skipTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"footer": true,
	"header": true,
	"noscript": true,
}

// extractHTMLText walks the DOM collecting visible text, one line per text
// node, with chrome elements removed.
func extractHTMLText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", BadRequest("extract html", err)
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return strings.Join(lines, "\n"), nil
}
