// Package websearch finds, ranks and cleans web evidence for research answers.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/metrics"
	"github.com/bassam-ai/bassam/internal/textnorm"
)

// Ranking boosts.
const (
	boostPreferredHost = 2.0
	boostArabicText    = 1.0
	boostQueryLiteral  = 0.5
)

// DefaultPreferredHosts is the closed list of Arabic reference and news hosts.
var DefaultPreferredHosts = []string{
	"ar.wikipedia.org",
	"aljazeera.net",
	"alarabiya.net",
	"skynewsarabia.com",
	"aawsat.com",
	"bbc.com/arabic",
	"arabic.cnn.com",
	"mawdoo3.com",
	"almaany.com",
	"youm7.com",
	"alkhaleej.ae",
	"emaratalyoum.com",
}

// BandwidthRecorder receives fetched byte counts.
type BandwidthRecorder interface {
	AddBandwidth(bytes int64)
}

// SearcherConfig configures a Searcher.
type SearcherConfig struct {
	Endpoint       string // DuckDuckGo HTML endpoint
	UserAgent      string
	Timeout        time.Duration
	PreferredHosts []string
	HTTPClient     *http.Client
	Bandwidth      BandwidthRecorder
}

// Searcher queries the upstream search page and ranks its results.
type Searcher struct {
	client    *http.Client
	endpoint  string
	userAgent string
	preferred []string
	bandwidth BandwidthRecorder
	logger    *zap.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(cfg SearcherConfig, logger *zap.Logger) *Searcher {
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
	preferred := cfg.PreferredHosts
	if len(preferred) == 0 {
		preferred = DefaultPreferredHosts
	}
	return &Searcher{
		client:    client,
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		preferred: preferred,
		bandwidth: cfg.Bandwidth,
		logger:    logger,
	}
}

// Search returns up to k ranked, deduplicated hits.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]domain.Hit, error) {
	start := time.Now()
	defer func() { metrics.WebSearchDuration.Observe(time.Since(start).Seconds()) }()
	domain.UsageFromContext(ctx).AddSearchCall()

	form := url.Values{"q": {query}, "kl": {"xa-ar"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build search request: %w", domain.ErrFetch, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "ar,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search request: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: search status %d", domain.ErrFetch, resp.StatusCode)
	}

	body := &countingReader{r: io.LimitReader(resp.Body, maxBodyBytes)}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse search page: %w", domain.ErrFetch, err)
	}
	if s.bandwidth != nil {
		s.bandwidth.AddBandwidth(body.n)
	}

	hits := parseResults(doc)
	ranked := Rank(hits, query, s.preferred)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	s.logger.Debug("Search done",
		zap.Int("upstream", len(hits)), zap.Int("returned", len(ranked)), zap.Duration("elapsed", time.Since(start)))
	return ranked, nil
}

// parseResults reads DuckDuckGo's HTML result blocks in upstream order.
func parseResults(doc *goquery.Document) []domain.Hit {
	var hits []domain.Hit
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		a := sel.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		target := resolveRedirect(href)
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		hits = append(hits, domain.Hit{
			Title:   strings.TrimSpace(a.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			Host:    strings.ToLower(u.Hostname()),
		})
	})
	return hits
}

// resolveRedirect unwraps "//duckduckgo.com/l/?uddg=<target>" links.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

// Rank deduplicates hits by exact URL and orders them by boost score.
// Hits with equal scores keep upstream order.
func Rank(hits []domain.Hit, query string, preferred []string) []domain.Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]domain.Hit, 0, len(hits))
	foldedQuery := textnorm.Fold(query)

	for _, h := range hits {
		if _, dup := seen[h.URL]; dup {
			continue
		}
		seen[h.URL] = struct{}{}

		if h.Host == "" {
			if u, err := url.Parse(h.URL); err == nil {
				h.Host = strings.ToLower(u.Hostname())
			}
		}
		text := h.Title + " " + h.Snippet
		h.Score = 0
		if isPreferred(h.URL, h.Host, preferred) {
			h.Score += boostPreferredHost
		}
		if textnorm.IsArabic(text) {
			h.Score += boostArabicText
		}
		if foldedQuery != "" && strings.Contains(textnorm.Fold(text), foldedQuery) {
			h.Score += boostQueryLiteral
		}
		out = append(out, h)
	}

	slices.SortStableFunc(out, func(a, b domain.Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

// isPreferred matches host suffixes; entries with a path ("bbc.com/arabic") match by prefix.
func isPreferred(rawURL, host string, preferred []string) bool {
	for _, p := range preferred {
		if h, path, ok := strings.Cut(p, "/"); ok {
			if (host == h || strings.HasSuffix(host, "."+h)) && strings.Contains(rawURL, h+"/"+path) {
				return true
			}
			continue
		}
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}
