package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/ledger"
)

func newDispatcher(t *testing.T, providers []Provider, l Ledger, timeout time.Duration) *Dispatcher {
	t.Helper()
	if l == nil {
		l = ledger.New(nil, zap.NewNop())
	}
	r := NewRegistry(context.Background(), providers, RegistryConfig{EnableLocal: true}, zap.NewNop())
	return NewDispatcher(r, l, timeout, zap.NewNop())
}

func TestDispatcher_FailoverOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	log := &callLog{}
	providers := []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), log: log, generateFn: failing(errors.New("HTTP 500"))},
		&fakeProvider{desc: cloudDesc("B", 1, 8), log: log, generateFn: failing(errors.New("empty body"))},
		&fakeProvider{desc: cloudDesc("C", 1, 7), log: log},
	}
	d := newDispatcher(t, providers, nil, time.Second)

	out := d.Generate(context.Background(), Request{Prompt: "ما هو الذكاء الاصطناعي؟"})

	if got := log.all(); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Fatalf("attempts = %v, want [A B C]", got)
	}
	if !out.Success || out.ProviderName != "C" || out.Text != "answer from C" {
		t.Errorf("unexpected outcome %+v", out)
	}

	stats := d.Stats()
	if stats[0].Failures != 1 || stats[1].Failures != 1 || stats[2].Successes != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDispatcher_AllProvidersFailed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	providers := []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), generateFn: failing(errors.New("boom"))},
		&fakeProvider{desc: cloudDesc("B", 2, 9), generateFn: failing(errors.New("boom"))},
	}
	d := newDispatcher(t, providers, nil, time.Second)

	out := d.Generate(context.Background(), Request{Prompt: "q"})
	if out.Success || out.ProviderName != FallbackProvider || out.Text != FallbackText {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !errors.Is(out.Err, domain.ErrAllProvidersFailed) {
		t.Errorf("expected ErrAllProvidersFailed, got %v", out.Err)
	}
	if !errors.Is(out.Err, domain.ErrProviderUnavailable) {
		t.Errorf("expected provider errors joined, got %v", out.Err)
	}
}

func TestDispatcher_NoProviders(t *testing.T) {
	d := newDispatcher(t, nil, nil, time.Second)
	out := d.Generate(context.Background(), Request{Prompt: "ما هو الذكاء الاصطناعي؟"})
	if out.Success || out.ProviderName != FallbackProvider {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(d.AvailableProviders()) != 0 {
		t.Error("expected no providers")
	}
}

func TestDispatcher_QuotaAccounting(t *testing.T) {
	l := ledger.New(map[string]ledger.Quota{"gemini": {DailyRequests: 100}}, zap.NewNop())
	d := newDispatcher(t, []Provider{&fakeProvider{desc: cloudDesc("gemini", 1, 8)}}, l, time.Second)

	const n = 6
	for range n {
		if out := d.Generate(context.Background(), Request{Prompt: "q"}); !out.Success {
			t.Fatalf("dispatch failed: %+v", out)
		}
	}
	rep := l.Report()
	if len(rep.Providers) != 1 || rep.Providers[0].Requests != n || rep.Providers[0].Tokens != n*10 {
		t.Errorf("ledger = %+v, want requests=%d", rep.Providers, n)
	}
}

func TestDispatcher_SkipsExhaustedQuota(t *testing.T) {
	log := &callLog{}
	l := ledger.New(map[string]ledger.Quota{"A": {DailyRequests: 1}}, zap.NewNop())
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), log: log},
		&fakeProvider{desc: cloudDesc("B", 2, 9), log: log},
	}, l, time.Second)

	first := d.Generate(context.Background(), Request{Prompt: "q"})
	second := d.Generate(context.Background(), Request{Prompt: "q"})

	if first.ProviderName != "A" || second.ProviderName != "B" {
		t.Fatalf("providers = %s, %s; want A, B", first.ProviderName, second.ProviderName)
	}
	if got := log.all(); !equalStrings(got, []string{"A", "B"}) {
		t.Errorf("calls = %v", got)
	}
	if d.Stats()[0].Skipped != 1 {
		t.Errorf("expected one skip for A, got %+v", d.Stats()[0])
	}
}

func TestDispatcher_FailuresRecordedInLedger(t *testing.T) {
	l := ledger.New(nil, zap.NewNop())
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), generateFn: failing(errors.New("x"))},
	}, l, time.Second)

	d.Generate(context.Background(), Request{Prompt: "q"})

	rep := l.Report()
	if rep.Providers[0].Failures != 1 || rep.Providers[0].Requests != 0 {
		t.Errorf("ledger = %+v", rep.Providers[0])
	}
}

func TestDispatcher_ContextPrepended(t *testing.T) {
	var seen string
	d := newDispatcher(t, []Provider{&fakeProvider{
		desc: cloudDesc("A", 1, 9),
		generateFn: func(_ context.Context, prompt string, _ int) (Completion, error) {
			seen = prompt
			return Completion{Text: "ok", Tokens: 1}, nil
		},
	}}, nil, time.Second)

	d.Generate(context.Background(), Request{Prompt: "السؤال", Context: "أنت مساعد"})
	if seen != "أنت مساعد\n\nالسؤال" {
		t.Errorf("prompt = %q", seen)
	}

	d.Generate(context.Background(), Request{Prompt: "السؤال"})
	if seen != "السؤال" {
		t.Errorf("prompt without context = %q", seen)
	}
}

func TestDispatcher_WordCountWhenUsageMissing(t *testing.T) {
	d := newDispatcher(t, []Provider{&fakeProvider{
		desc: cloudDesc("A", 1, 9),
		generateFn: func(context.Context, string, int) (Completion, error) {
			return Completion{Text: "three word answer"}, nil
		},
	}}, nil, time.Second)

	out := d.Generate(context.Background(), Request{Prompt: "two words"})
	if out.TokensUsed != 5 {
		t.Errorf("tokens = %d, want 5", out.TokensUsed)
	}
}

func TestDispatcher_CallTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var aErr error
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("slow", 1, 9), generateFn: func(ctx context.Context, _ string, _ int) (Completion, error) {
			<-ctx.Done()
			aErr = ctx.Err()
			return Completion{}, ctx.Err()
		}},
		&fakeProvider{desc: cloudDesc("fast", 1, 8)},
	}, nil, 50*time.Millisecond)

	out := d.Generate(context.Background(), Request{Prompt: "q"})
	if out.ProviderName != "fast" {
		t.Fatalf("expected failover to fast, got %+v", out)
	}
	if !errors.Is(aErr, context.DeadlineExceeded) {
		t.Errorf("slow provider saw %v", aErr)
	}
}

func TestDispatcher_TimeoutErrorClassified(t *testing.T) {
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("slow", 1, 9), generateFn: func(ctx context.Context, _ string, _ int) (Completion, error) {
			<-ctx.Done()
			return Completion{}, ctx.Err()
		}},
	}, nil, 20*time.Millisecond)

	out := d.Generate(context.Background(), Request{Prompt: "q"})
	if !errors.Is(out.Err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout in %v", out.Err)
	}
}

func TestDispatcher_CancelledContext(t *testing.T) {
	log := &callLog{}
	d := newDispatcher(t, []Provider{&fakeProvider{desc: cloudDesc("A", 1, 9), log: log}}, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.Generate(ctx, Request{Prompt: "q"})

	if out.Success || len(log.all()) != 0 {
		t.Errorf("expected no attempts after cancellation, got %v / %+v", log.all(), out)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled in %v", out.Err)
	}
}

func TestDispatcher_ForcedProvider(t *testing.T) {
	log := &callLog{}
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), log: log},
		&fakeProvider{desc: cloudDesc("B", 2, 9), log: log},
	}, nil, time.Second)

	out := d.Generate(context.Background(), Request{Prompt: "q", Provider: "B"})
	if out.ProviderName != "B" || !equalStrings(log.all(), []string{"B"}) {
		t.Errorf("forced dispatch went to %s (calls %v)", out.ProviderName, log.all())
	}
}

func TestDispatcher_StaleLocalIsReprobed(t *testing.T) {
	log := &callLog{}
	probeOK := true
	fails := 1
	local := &fakeLocal{
		fakeProvider: fakeProvider{
			desc: localDesc("ollama", 1, 9),
			log:  log,
			generateFn: func(context.Context, string, int) (Completion, error) {
				if fails > 0 {
					fails--
					return Completion{}, errors.New("model crashed")
				}
				return Completion{Text: "local answer", Tokens: 3}, nil
			},
		},
		probeFn: func(context.Context) error {
			if !probeOK {
				return errors.New("down")
			}
			return nil
		},
	}
	d := newDispatcher(t, []Provider{local, &fakeProvider{desc: cloudDesc("cloud", 2, 9), log: log}}, nil, time.Second)

	// Fails, marked stale, cloud answers.
	if out := d.Generate(context.Background(), Request{Prompt: "q"}); out.ProviderName != "cloud" {
		t.Fatalf("first = %+v", out)
	}

	// Re-probe fails: skipped without a call.
	probeOK = false
	if out := d.Generate(context.Background(), Request{Prompt: "q"}); out.ProviderName != "cloud" {
		t.Fatalf("second = %+v", out)
	}

	// Re-probe succeeds: local is tried again.
	probeOK = true
	if out := d.Generate(context.Background(), Request{Prompt: "q"}); out.ProviderName != "ollama" {
		t.Fatalf("third = %+v", out)
	}

	want := []string{"ollama", "cloud", "cloud", "ollama"}
	if got := log.all(); !equalStrings(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDispatcher_CountsUpstreamCalls(t *testing.T) {
	d := newDispatcher(t, []Provider{
		&fakeProvider{desc: cloudDesc("A", 1, 9), generateFn: failing(errors.New("x"))},
		&fakeProvider{desc: cloudDesc("B", 1, 8)},
	}, nil, time.Second)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	d.Generate(ctx, Request{Prompt: "q"})
	if usage.LLMCalls != 2 || usage.TotalTokens != 10 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestFallbackText_IsArabic(t *testing.T) {
	if !strings.ContainsRune(FallbackText, 'ع') {
		t.Error("fallback must be an Arabic sentence")
	}
}
