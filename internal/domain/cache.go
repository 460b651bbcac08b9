package domain

import "time"

// KeyPrefix namespaces every durable key written by the service.
const KeyPrefix = "bassam:"

// Retention windows for durable state.
const (
	AnswerMemoryTTL    = time.Hour
	AnswerDurableTTL   = 7 * 24 * time.Hour
	UsageLogsRetention = 30 * 24 * time.Hour
)

// CacheEntry is a cached answer.
type CacheEntry struct {
	QueryHash    string    `json:"query_hash"`
	QueryText    string    `json:"query_text"`
	Answer       Answer    `json:"answer"`
	ProviderName string    `json:"provider_name"`
	CreatedAt    time.Time `json:"created_at"`
	AccessCount  int       `json:"access_count"`
}

// Expired reports whether the entry outlived the durable retention window.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= AnswerDurableTTL
}
