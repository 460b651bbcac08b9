package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
)

type bandwidthSpy struct{ total int64 }

func (b *bandwidthSpy) AddBandwidth(n int64) { b.total += n }

func resultBlock(target, title, snippet string) string {
	return fmt.Sprintf(`<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=%s&amp;rut=abc">%s</a></h2>
  <a class="result__snippet" href="#">%s</a>
</div>`, url.QueryEscape(target), title, snippet)
}

func TestRank_PreferredHostFirst(t *testing.T) {
	hits := []domain.Hit{
		{Title: "Rice prices", URL: "https://example.com/rice", Snippet: "market update"},
		{Title: "Rice prices", URL: "https://ar.wikipedia.org/rice", Snippet: "market update"},
	}
	ranked := Rank(hits, "unrelated", DefaultPreferredHosts)
	if ranked[0].Host != "ar.wikipedia.org" {
		t.Fatalf("preferred host should rank first, got %+v", ranked)
	}
	if ranked[0].Score != boostPreferredHost || ranked[1].Score != 0 {
		t.Errorf("scores = %v, %v", ranked[0].Score, ranked[1].Score)
	}
}

func TestRank_Boosts(t *testing.T) {
	hits := []domain.Hit{
		{Title: "plain", URL: "https://a.com/1"},
		{Title: "contains rice price", URL: "https://b.com/2"},
		{Title: "سعر الأرز", URL: "https://c.com/3"},
		{Title: "سعر الأرز rice price", URL: "https://www.aljazeera.net/4"},
	}
	ranked := Rank(hits, "rice price", DefaultPreferredHosts)

	want := []struct {
		url   string
		score float64
	}{
		{"https://www.aljazeera.net/4", 3.5},
		{"https://c.com/3", 1.0},
		{"https://b.com/2", 0.5},
		{"https://a.com/1", 0},
	}
	for i, w := range want {
		if ranked[i].URL != w.url || ranked[i].Score != w.score {
			t.Errorf("rank %d = %s (%v), want %s (%v)", i, ranked[i].URL, ranked[i].Score, w.url, w.score)
		}
	}
}

func TestRank_TiesKeepUpstreamOrderAndDedup(t *testing.T) {
	hits := []domain.Hit{
		{Title: "one", URL: "https://x.com/1"},
		{Title: "two", URL: "https://y.com/2"},
		{Title: "one again", URL: "https://x.com/1"},
		{Title: "three", URL: "https://z.com/3"},
	}
	ranked := Rank(hits, "q", nil)
	if len(ranked) != 3 {
		t.Fatalf("expected dedup to 3, got %d", len(ranked))
	}
	for i, u := range []string{"https://x.com/1", "https://y.com/2", "https://z.com/3"} {
		if ranked[i].URL != u {
			t.Errorf("position %d = %s, want %s", i, ranked[i].URL, u)
		}
	}
	if ranked[0].Title != "one" {
		t.Error("dedup must keep the first occurrence")
	}
}

func TestIsPreferred_PathEntry(t *testing.T) {
	if !isPreferred("https://www.bbc.com/arabic/world-1", "www.bbc.com", DefaultPreferredHosts) {
		t.Error("bbc.com/arabic should be preferred")
	}
	if isPreferred("https://www.bbc.com/news/world-1", "www.bbc.com", DefaultPreferredHosts) {
		t.Error("bbc.com/news should not be preferred")
	}
	if isPreferred("https://notaljazeera.net/x", "notaljazeera.net", DefaultPreferredHosts) {
		t.Error("suffix match must respect label boundaries")
	}
}

func TestSearcher_Search(t *testing.T) {
	page := "<html><body>" +
		resultBlock("https://example.com/rice", "Rice price UAE", "latest price of rice in UAE") +
		resultBlock("https://www.alkhaleej.ae/rice", "أسعار الأرز في الإمارات", "تحديث يومي") +
		resultBlock("https://example.com/rice", "dup", "dup") +
		`<div class="result"><a class="result__a" href="javascript:void(0)">bad</a></div>` +
		"</body></html>"

	var gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotQuery = r.PostForm.Get("q")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	spy := &bandwidthSpy{}
	s := NewSearcher(SearcherConfig{Endpoint: server.URL, UserAgent: "test-agent", Bandwidth: spy}, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	hits, err := s.Search(ctx, "latest price of rice in UAE", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "latest price of rice in UAE" || gotUA != "test-agent" {
		t.Errorf("request q=%q ua=%q", gotQuery, gotUA)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].Host != "www.alkhaleej.ae" || hits[1].URL != "https://example.com/rice" {
		t.Errorf("unexpected order %+v", hits)
	}
	if usage.SearchCalls != 1 {
		t.Errorf("search calls = %d", usage.SearchCalls)
	}
	if spy.total != int64(len(page)) {
		t.Errorf("bandwidth = %d, want %d", spy.total, len(page))
	}
}

func TestSearcher_LimitsK(t *testing.T) {
	page := resultBlock("https://a.com", "a", "") + resultBlock("https://b.com", "b", "") + resultBlock("https://c.com", "c", "")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	hits, err := NewSearcher(SearcherConfig{Endpoint: server.URL}, zap.NewNop()).Search(context.Background(), "x", 2)
	if err != nil || len(hits) != 2 {
		t.Fatalf("hits=%v err=%v", hits, err)
	}
}

func TestSearcher_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewSearcher(SearcherConfig{Endpoint: server.URL}, zap.NewNop()).Search(context.Background(), "x", 2)
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestResolveRedirect(t *testing.T) {
	tests := []struct{ in, want string }{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Far.wikipedia.org%2Fwiki%2F%D8%A3&rut=1", "https://ar.wikipedia.org/wiki/أ"},
		{"https://example.com/page", "https://example.com/page"},
		{"//duckduckgo.com/y.js?ad=1", "https://duckduckgo.com/y.js?ad=1"},
	}
	for _, tc := range tests {
		if got := resolveRedirect(tc.in); got != tc.want {
			t.Errorf("resolveRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
