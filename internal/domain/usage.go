package domain

import "context"

type upstreamUsageKey struct{}

// UpstreamUsage counts outbound calls made while serving one request.
// The handler puts a mutable pointer into the context; components increment it.
type UpstreamUsage struct {
	LLMCalls    int
	SearchCalls int
	FetchCalls  int
	TotalTokens int
}

// NewContextWithUsage returns a context carrying an upstream usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *UpstreamUsage) {
	u := &UpstreamUsage{}
	return context.WithValue(ctx, upstreamUsageKey{}, u), u
}

// UsageFromContext extracts the collector. Returns nil if not set.
func UsageFromContext(ctx context.Context) *UpstreamUsage {
	u, _ := ctx.Value(upstreamUsageKey{}).(*UpstreamUsage)
	return u
}

// AddLLMCall records one provider attempt and its tokens.
func (u *UpstreamUsage) AddLLMCall(tokens int) {
	if u != nil {
		u.LLMCalls++
		u.TotalTokens += tokens
	}
}

// AddSearchCall records one search round-trip.
func (u *UpstreamUsage) AddSearchCall() {
	if u != nil {
		u.SearchCalls++
	}
}

// AddFetchCall records one page fetch.
func (u *UpstreamUsage) AddFetchCall() {
	if u != nil {
		u.FetchCalls++
	}
}

// Total returns the number of outbound calls of any kind.
func (u *UpstreamUsage) Total() int {
	if u == nil {
		return 0
	}
	return u.LLMCalls + u.SearchCalls + u.FetchCalls
}
