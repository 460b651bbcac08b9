package websearch

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/metrics"
)

const (
	// DefaultFetchTimeout bounds a single page fetch.
	DefaultFetchTimeout = 12 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Mozilla/5.0 (compatible; BassamBot/1.0)"

	maxBodyBytes = 4 << 20
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Bandwidth  BandwidthRecorder
}

// Fetcher downloads pages and reduces them to readable passage text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	bandwidth BandwidthRecorder
	logger    *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{client: client, userAgent: cfg.UserAgent, bandwidth: cfg.Bandwidth, logger: logger}
}

// FetchClean returns the page's main text, at most domain.MaxPassageChars
// runes. Any failure yields "".
func (f *Fetcher) FetchClean(ctx context.Context, rawURL string) string {
	domain.UsageFromContext(ctx).AddFetchCall()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		f.fail(rawURL, err)
		return ""
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		f.fail(rawURL, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		f.fail(rawURL, &statusErr{resp.StatusCode})
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if f.bandwidth != nil {
		f.bandwidth.AddBandwidth(int64(len(raw)))
	}
	if err != nil {
		f.fail(rawURL, err)
		return ""
	}

	text, fromArticle := Extract(string(raw))
	if text == "" {
		f.fail(rawURL, errEmptyPage)
		return ""
	}
	if fromArticle {
		metrics.WebFetchTotal.WithLabelValues("article").Inc()
	} else {
		metrics.WebFetchTotal.WithLabelValues("stripped").Inc()
	}
	return text
}

func (f *Fetcher) fail(rawURL string, err error) {
	metrics.WebFetchTotal.WithLabelValues("error").Inc()
	f.logger.Debug("Fetch dropped", zap.String("url", rawURL), zap.Error(err))
}

type statusErr struct{ code int }

func (e *statusErr) Error() string { return "unexpected status " + http.StatusText(e.code) }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err //nolint:wrapcheck // transparent wrapper
}
