package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
)

func articlePage(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>t</title><script>var tracking = 1;</script></head><body>`)
	sb.WriteString(`<nav><a href="/">الرئيسية</a><a href="/news">أخبار</a></nav><article><h1>أسعار الأرز</h1>`)
	for i := 0; i < paragraphs; i++ {
		sb.WriteString("<p>ارتفعت أسعار الأرز في أسواق الإمارات خلال الأسبوع الماضي بنسبة طفيفة وفق بيانات التجار المحليين.</p>")
	}
	sb.WriteString(`</article><footer>حقوق النشر محفوظة</footer></body></html>`)
	return sb.String()
}

func TestExtract_Article(t *testing.T) {
	text, fromArticle := Extract(articlePage(6))
	if !fromArticle {
		t.Fatal("expected article extraction")
	}
	if !strings.Contains(text, "أسعار الأرز") {
		t.Errorf("missing heading in %q", text)
	}
	for _, noise := range []string{"tracking", "الرئيسية", "حقوق النشر"} {
		if strings.Contains(text, noise) {
			t.Errorf("noise %q leaked into %q", noise, text)
		}
	}
}

func TestExtract_ShortArticleFallsBackToStripped(t *testing.T) {
	page := `<html><body><article><p>قصير</p></article><div><p>فقرة أولى.</p><p>فقرة ثانية.</p></div><script>x()</script></body></html>`
	text, fromArticle := Extract(page)
	if fromArticle {
		t.Fatal("short article should fall back")
	}
	if !strings.Contains(text, "فقرة أولى.\n\nفقرة ثانية.") {
		t.Errorf("paragraph breaks lost: %q", text)
	}
	if strings.Contains(text, "x()") {
		t.Errorf("script content kept: %q", text)
	}
}

func TestExtract_DensestDivWithoutSemanticContainer(t *testing.T) {
	long := strings.Repeat("هذا نص طويل عن الموضوع المطلوب. ", 20)
	page := `<html><body><div class="menu"><p>قائمة</p></div><div class="content"><p>` + long + `</p><p>` + long + `</p></div></body></html>`
	text, fromArticle := Extract(page)
	if !fromArticle {
		t.Fatal("expected the dense div to qualify")
	}
	if strings.Contains(text, "قائمة") {
		t.Errorf("menu div should lose to the content div: %q", text)
	}
}

func TestExtract_Truncates(t *testing.T) {
	text, _ := Extract(articlePage(400))
	if n := utf8.RuneCountInString(text); n != domain.MaxPassageChars {
		t.Errorf("length = %d, want %d", n, domain.MaxPassageChars)
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags(`<h1>عنوان</h1><style>.a{}</style><ul><li>واحد</li><li>اثنان &amp; ثلاثة</li></ul>`)
	want := "عنوان\n\nواحد\n\nاثنان & ثلاثة"
	if got != want {
		t.Errorf("StripTags = %q, want %q", got, want)
	}
}

func TestStripTags_SelfClosingSkipTag(t *testing.T) {
	got := StripTags(`<p>أول</p><template/><p>ثاني</p><head/><p>ثالث</p>`)
	want := "أول\n\nثاني\n\nثالث"
	if got != want {
		t.Errorf("StripTags = %q, want %q", got, want)
	}
}

func TestFetcher_FetchClean(t *testing.T) {
	page := articlePage(6)
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	spy := &bandwidthSpy{}
	f := NewFetcher(FetcherConfig{Bandwidth: spy}, zap.NewNop())
	ctx, usage := domain.NewContextWithUsage(context.Background())

	text := f.FetchClean(ctx, server.URL)
	if !strings.Contains(text, "ارتفعت أسعار الأرز") {
		t.Errorf("unexpected text %q", text)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("user agent = %q", gotUA)
	}
	if spy.total != int64(len(page)) {
		t.Errorf("bandwidth = %d, want %d", spy.total, len(page))
	}
	if usage.FetchCalls != 1 {
		t.Errorf("fetch calls = %d", usage.FetchCalls)
	}
}

func TestFetcher_FailuresYieldEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/blank":
			_, _ = w.Write([]byte("<html><body><script>only()</script></body></html>"))
		}
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{}, zap.NewNop())
	for _, path := range []string{"/missing", "/blank"} {
		if got := f.FetchClean(context.Background(), server.URL+path); got != "" {
			t.Errorf("%s: expected empty, got %q", path, got)
		}
	}
	if got := f.FetchClean(context.Background(), "http://127.0.0.1:1/unreachable"); got != "" {
		t.Errorf("unreachable: expected empty, got %q", got)
	}
	if got := f.FetchClean(context.Background(), "::not a url"); got != "" {
		t.Errorf("bad url: expected empty, got %q", got)
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(articlePage(6)))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewFetcher(FetcherConfig{}, zap.NewNop()).FetchClean(ctx, server.URL); got != "" {
		t.Errorf("expected empty on cancelled context, got %q", got)
	}
}
