package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started by an init in the genai dependency tree
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func query(text string) domain.Query { return domain.Query{RawText: text} }

func TestAnswer_MathBypassesModel(t *testing.T) {
	p := &fakeProvider{name: "a"}
	h := newHarness([]llm.Provider{p})
	ctx, usage := domain.NewContextWithUsage(context.Background())

	ans := h.orch.Answer(ctx, query("حل x**2-5x+6=0"))

	if ans.Route != domain.RouteMath || !ans.Success {
		t.Fatalf("route=%s success=%v", ans.Route, ans.Success)
	}
	for _, want := range []string{"x_1=3", "x_2=2"} {
		if !strings.Contains(ans.Text, want) {
			t.Errorf("answer missing %q:\n%s", want, ans.Text)
		}
	}
	if usage.Total() != 0 || len(p.calls()) != 0 {
		t.Errorf("math must not call upstream, usage=%+v", usage)
	}
	if h.cache.stores != 0 {
		t.Error("math answers must not be cached")
	}
}

func TestAnswer_MathVerbOverridesDefinitionIntent(t *testing.T) {
	p := &fakeProvider{name: "a"}
	h := newHarness([]llm.Provider{p})

	for _, q := range []string{"ما هو مشتق x^2", "ما هو تكامل cos(x)"} {
		t.Run(q, func(t *testing.T) {
			ctx, usage := domain.NewContextWithUsage(context.Background())
			ans := h.orch.Answer(ctx, query(q))
			if ans.Route != domain.RouteMath || !ans.Success {
				t.Fatalf("route=%s success=%v text=%q", ans.Route, ans.Success, ans.Text)
			}
			if ans.Classification == nil || ans.Classification.Intent != domain.IntentMathematical {
				t.Errorf("classification = %+v, want mathematical", ans.Classification)
			}
			if usage.LLMCalls != 0 {
				t.Errorf("math must not reach a provider, usage=%+v", usage)
			}
		})
	}
	if len(p.calls()) != 0 {
		t.Errorf("provider called %d times", len(p.calls()))
	}
}

func TestAnswer_MathParseError(t *testing.T) {
	h := newHarness(nil)
	ans := h.orch.Answer(context.Background(), query("احسب مشتقة (((x"))
	if ans.Route != domain.RouteMath || ans.Success {
		t.Fatalf("route=%s success=%v", ans.Route, ans.Success)
	}
	if !strings.Contains(ans.Text, "لم أتمكن من فهم المسألة") {
		t.Errorf("expected structured parse message, got %q", ans.Text)
	}
}

func TestAnswer_IdentityBypass(t *testing.T) {
	p := &fakeProvider{name: "a"}
	h := newHarness([]llm.Provider{p})
	h.cache.entries["من هو بسام الشتيمي"] = domain.CacheEntry{Answer: domain.Answer{Text: "stale"}}
	ctx, usage := domain.NewContextWithUsage(context.Background())

	for _, q := range []string{"من هو بسام الشتيمي", "  مَن هو   بسّام الشتيمي؟", "tell me about Bassam Al-Shutaimi"} {
		ans := h.orch.Answer(ctx, query(q))
		if ans.Text != Bio || ans.Route != domain.RouteIdentity || ans.FromCache {
			t.Errorf("%q: got route=%s text=%q", q, ans.Route, ans.Text)
		}
	}
	if usage.Total() != 0 {
		t.Errorf("identity must make zero upstream calls, usage=%+v", usage)
	}
}

func TestAnswer_ResearchWithPrices(t *testing.T) {
	p := &fakeProvider{name: "a", generateFn: func(_ context.Context, prompt string) (llm.Completion, error) {
		return llm.Completion{Text: "سعر كيس الأرز 5 كغ نحو 30 درهماً.", Tokens: 40}, nil
	}}
	h := newHarness([]llm.Provider{p})
	h.search.hits = []domain.Hit{
		{Title: "أسعار الأرز", URL: "https://www.alkhaleej.ae/rice", Host: "www.alkhaleej.ae"},
		{Title: "Rice prices", URL: "https://example.com/rice", Host: "example.com"},
		{Title: "Dead link", URL: "https://dead.example/rice", Host: "dead.example"},
		{Title: "Fourth", URL: "https://four.example/rice", Host: "four.example"},
	}
	h.fetch.pages["https://www.alkhaleej.ae/rice"] = "ارتفع سعر الأرز في الإمارات."
	h.fetch.pages["https://example.com/rice"] = "Rice costs about 30 AED per 5 kg bag."
	ctx, usage := domain.NewContextWithUsage(context.Background())

	ans := h.orch.Answer(ctx, domain.Query{RawText: "latest price of rice in UAE", Options: domain.Options{WantPrices: true}})

	if ans.Route != domain.RouteResearch || !ans.Success || ans.Text == "" {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if len(ans.Sources) != 2 || ans.Sources[0].URL != "https://www.alkhaleej.ae/rice" {
		t.Errorf("sources = %+v", ans.Sources)
	}
	if h.search.lastK != 2*DefaultMaxSources {
		t.Errorf("search k = %d", h.search.lastK)
	}
	if len(h.fetch.fetched) != DefaultMaxSources {
		t.Errorf("fetched %v, want top %d", h.fetch.fetched, DefaultMaxSources)
	}
	if usage.SearchCalls != 1 || usage.LLMCalls != 1 || usage.FetchCalls < 1 {
		t.Errorf("usage = %+v", usage)
	}

	prompt := p.calls()[0]
	for _, want := range []string{"latest price of rice in UAE", "alkhaleej.ae", "العملة"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("enrichment prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAnswer_ResearchFallsBackToSummary(t *testing.T) {
	h := newHarness([]llm.Provider{downProvider("a")}, func(d *Deps, _ *Config) {
		d.Local = &fakeRetriever{docs: []domain.Document{{Path: "knowledge/rice.md", Content: "الأرز غذاء أساسي في الخليج."}}}
	})
	h.search.hits = []domain.Hit{{Title: "t", URL: "https://a.example/x"}}
	h.fetch.pages["https://a.example/x"] = "أسعار الأرز مستقرة هذا الأسبوع. يباع الكيس بثلاثين درهماً."

	ans := h.orch.Answer(context.Background(), domain.Query{RawText: "كم سعر الأرز اليوم", Options: domain.Options{WantPrices: true}})

	if !ans.Success || ans.Route != domain.RouteResearch {
		t.Fatalf("expected summary answer, got %+v", ans)
	}
	if !strings.Contains(ans.Text, "أسعار الأرز مستقرة") || !strings.Contains(ans.Text, "غذاء أساسي") {
		t.Errorf("summary should draw on web and local passages: %q", ans.Text)
	}
	if ans.Text == llm.FallbackText {
		t.Error("fallback text returned although passages exist")
	}
}

func TestAnswer_ResearchWithoutEvidenceOrModel(t *testing.T) {
	h := newHarness(nil)
	h.search.err = domain.ErrFetch

	ans := h.orch.Answer(context.Background(), domain.Query{RawText: "كم سعر الذهب", Options: domain.Options{WantPrices: true}})
	if ans.Success || ans.Text != llm.FallbackText || ans.Provider != llm.FallbackProvider {
		t.Errorf("unexpected answer %+v", ans)
	}
	if h.cache.stores != 0 {
		t.Error("failed answers must not be cached")
	}
}

func TestAnswer_AllProvidersFailed(t *testing.T) {
	h := newHarness(nil)
	ans := h.orch.Answer(context.Background(), query("ما هو الذكاء الاصطناعي؟"))

	if ans.Success || ans.Text != llm.FallbackText || ans.Route != domain.RouteGeneral {
		t.Errorf("unexpected answer %+v", ans)
	}
}

func TestAnswer_SecondCallFromCache(t *testing.T) {
	p := &fakeProvider{name: "a"}
	h := newHarness([]llm.Provider{p})
	ctx, usage := domain.NewContextWithUsage(context.Background())

	first := h.orch.Answer(ctx, query("ما هو الذكاء الاصطناعي؟"))
	second := h.orch.Answer(ctx, query("ما هو  الذكاء الاصطناعي؟"))

	if first.FromCache || !first.Success {
		t.Fatalf("first answer = %+v", first)
	}
	if !second.FromCache || second.Route != domain.RouteCache {
		t.Errorf("second answer should come from cache: %+v", second)
	}
	if usage.Total() != 1 {
		t.Errorf("expected exactly one upstream call, usage=%+v", usage)
	}
	if second.Text != first.Text {
		t.Errorf("cached text differs")
	}
}

func TestAnswer_GeneralPostProcessing(t *testing.T) {
	p := &fakeProvider{name: "a"}
	h := newHarness([]llm.Provider{p})

	ans := h.orch.Answer(context.Background(), query("ما هو الذكاء الاصطناعي؟"))

	if !strings.HasSuffix(ans.Text, followUps[domain.IntentDefinition]) {
		t.Errorf("missing definition follow-up: %q", ans.Text)
	}
	for _, opener := range openers {
		if strings.HasPrefix(ans.Text, opener) {
			t.Errorf("neutral query must not get an opener: %q", ans.Text)
		}
	}
	prompt := p.calls()[0]
	if !strings.HasPrefix(prompt, "أنت بسام") || !strings.Contains(prompt, intentInstructions[domain.IntentDefinition]) {
		t.Errorf("preamble not prepended: %q", prompt)
	}
}

func TestAnswer_GratitudeOpener(t *testing.T) {
	h := newHarness([]llm.Provider{&fakeProvider{name: "a"}})
	ans := h.orch.Answer(context.Background(), query("شكراً!"))

	if ans.Classification == nil || ans.Classification.Emotion != domain.EmotionGratitude {
		t.Fatalf("classification = %+v", ans.Classification)
	}
	if !strings.HasPrefix(ans.Text, openers[domain.EmotionGratitude]) {
		t.Errorf("expected gratitude opener, got %q", ans.Text)
	}
}

func TestAnswer_ForcedProvider(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	h := newHarness([]llm.Provider{a, b})
	b.generateFn = func(context.Context, string) (llm.Completion, error) {
		return llm.Completion{Text: "from b", Tokens: 3}, nil
	}

	ans := h.orch.Answer(context.Background(), domain.Query{
		RawText: "اشرح الجاذبية",
		Options: domain.Options{ForceProvider: "b", MaxTokens: 64},
	})
	if ans.Provider != "b" || len(a.calls()) != 0 {
		t.Errorf("forced provider ignored: %+v", ans)
	}
}

func TestAnswer_SessionRecorded(t *testing.T) {
	h := newHarness([]llm.Provider{&fakeProvider{name: "a"}})
	id := h.sessions.Create()

	h.orch.Answer(context.Background(), domain.Query{RawText: "ما هو الذكاء الاصطناعي؟", SessionID: id})
	h.orch.Answer(context.Background(), domain.Query{RawText: "حل x+1=0", SessionID: id})

	sess, ok := h.sessions.Get(id)
	if !ok {
		t.Fatal("session missing")
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("messages = %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != domain.RoleUser || sess.Messages[1].Role != domain.RoleAssistant {
		t.Error("roles out of order")
	}
	if len(sess.Segments) != 2 || sess.Segments[1].Intent != domain.IntentMathematical {
		t.Errorf("segments = %+v", sess.Segments)
	}
	if h.build.total <= 0 {
		t.Error("build time not recorded")
	}
}

func TestAnswer_LedgerCountsDispatch(t *testing.T) {
	h := newHarness([]llm.Provider{&fakeProvider{name: "a"}})
	h.orch.Answer(context.Background(), query("ما هو الذكاء الاصطناعي؟"))
	h.orch.Answer(context.Background(), query("اشرح الجاذبية"))

	rep := h.ledger.Report()
	if len(rep.Providers) != 1 || rep.Providers[0].Requests != 2 {
		t.Errorf("ledger report = %+v", rep.Providers)
	}
}

func TestAnswer_BudgetReturnsPartialSummary(t *testing.T) {
	slow := &fakeProvider{name: "a", generateFn: func(ctx context.Context, _ string) (llm.Completion, error) {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	}}
	h := newHarness([]llm.Provider{slow}, func(_ *Deps, c *Config) {
		c.RequestTimeout = 50 * time.Millisecond
	})
	h.search.hits = []domain.Hit{{Title: "t", URL: "https://a.example/x"}}
	h.fetch.pages["https://a.example/x"] = "الذهب يرتفع. الفضة تنخفض."

	start := time.Now()
	ans := h.orch.Answer(context.Background(), domain.Query{RawText: "كم سعر الذهب", Options: domain.Options{WantPrices: true}})

	if time.Since(start) > time.Second {
		t.Errorf("budget not enforced: %v", time.Since(start))
	}
	if !ans.Success || !strings.Contains(ans.Text, "الذهب يرتفع") {
		t.Errorf("expected partial summary, got %+v", ans)
	}
}

func TestAnswer_ConcurrentIdenticalQueriesShareDispatch(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: "a"}
	p.generateFn = func(context.Context, string) (llm.Completion, error) {
		<-release
		return llm.Completion{Text: "جواب", Tokens: 2}, nil
	}
	h := newHarness([]llm.Provider{p})

	var wg sync.WaitGroup
	results := make([]domain.Answer, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.orch.Answer(context.Background(), query("اشرح الجاذبية"))
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	calls := len(p.calls())
	if calls < 1 || calls > 4 {
		t.Fatalf("calls = %d", calls)
	}
	for _, r := range results {
		if !r.Success || !strings.Contains(r.Text, "جواب") {
			t.Errorf("unexpected result %+v", r)
		}
	}
}

func TestAnswer_CancelledCallerDoesNotAbortSharedQuery(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: "a"}
	p.generateFn = func(ctx context.Context, _ string) (llm.Completion, error) {
		select {
		case <-release:
			return llm.Completion{Text: "جواب", Tokens: 2}, nil
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		}
	}
	h := newHarness([]llm.Provider{p})

	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstDone := make(chan domain.Answer, 1)
	go func() { firstDone <- h.orch.Answer(first, query("اشرح الجاذبية")) }()

	deadline := time.Now().Add(time.Second)
	for len(p.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("provider never called")
		}
		time.Sleep(5 * time.Millisecond)
	}

	secondDone := make(chan domain.Answer, 1)
	go func() { secondDone <- h.orch.Answer(context.Background(), query("اشرح الجاذبية")) }()
	time.Sleep(30 * time.Millisecond)

	cancelFirst()
	select {
	case ans := <-firstDone:
		if ans.Success {
			t.Errorf("cancelled caller got a successful answer: %+v", ans)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case ans := <-secondDone:
		if !ans.Success || !strings.Contains(ans.Text, "جواب") {
			t.Errorf("live caller got %+v", ans)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller never answered")
	}
	if n := len(p.calls()); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestPeople(t *testing.T) {
	h := newHarness(nil)
	h.search.hits = []domain.Hit{
		{Title: "نجيب محفوظ - ويكيبيديا", URL: "https://ar.wikipedia.org/wiki/x"},
		{Title: "سيرة", URL: "https://b.example/y"},
	}

	sources, err := h.orch.People(context.Background(), "نجيب محفوظ")
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 || sources[0].URL != "https://ar.wikipedia.org/wiki/x" {
		t.Errorf("sources = %+v", sources)
	}

	h.search.err = domain.ErrFetch
	if _, err := h.orch.People(context.Background(), "x"); !errors.Is(err, domain.ErrFetch) {
		t.Errorf("expected ErrFetch, got %v", err)
	}
}

func TestIsIdentityQuery(t *testing.T) {
	cases := map[string]bool{
		"من هو بسام الشتيمي":   true,
		"بسام شتيمي":           true,
		"من طورك؟":             true,
		"من أنشأك":             true,
		"من هو بسام":           false,
		"ما هو الذكاء الاصطناعي": false,
	}
	for q, want := range cases {
		if got := IsIdentityQuery(q); got != want {
			t.Errorf("IsIdentityQuery(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestPreambleFallsBackToGeneral(t *testing.T) {
	got := preamble("unknown", "unknown")
	if !strings.Contains(got, intentInstructions[domain.IntentGeneral]) ||
		!strings.Contains(got, toneInstructions[domain.EmotionNeutral]) {
		t.Errorf("unexpected preamble %q", got)
	}
	if followUp("unknown") != followUps[domain.IntentGeneral] {
		t.Error("unknown intent should use general follow-up")
	}
}
