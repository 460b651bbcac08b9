package domain

import "time"

// Query is the immutable input of one orchestration.
type Query struct {
	RawText   string
	SessionID string
	Options   Options
}

// Options tunes a single query.
type Options struct {
	WantPrices    bool
	ForceProvider string // empty means dispatcher order
	MaxTokens     int    // 0 means provider default
}

// Route names the branch of the decision tree that produced an answer.
type Route string

// Route constants.
const (
	RouteIdentity Route = "identity"
	RouteCache    Route = "cache"
	RouteMath     Route = "math"
	RouteResearch Route = "research"
	RouteGeneral  Route = "general"
)

// Source is an attribution attached to a research answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the orchestrator's final output for a query.
type Answer struct {
	Text           string          `json:"text"`
	Sources        []Source        `json:"sources,omitempty"`
	Route          Route           `json:"route"`
	Provider       string          `json:"provider,omitempty"`
	FromCache      bool            `json:"from_cache"`
	Success        bool            `json:"success"`
	TokensUsed     int             `json:"tokens_used,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Latency        time.Duration   `json:"-"`
}
