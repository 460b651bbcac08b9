package domain

import "cmp"

// ProviderKind separates providers reached over the internet from providers on the host.
type ProviderKind string

// Provider kinds.
const (
	ProviderCloudHosted ProviderKind = "cloud_hosted"
	ProviderLocalHosted ProviderKind = "local_hosted"
)

// MinCredentialLength is the shortest credential that enables a cloud provider.
const MinCredentialLength = 10

// ProviderDescriptor is the static description of an LLM provider.
type ProviderDescriptor struct {
	Name           string       `json:"name"`
	Kind           ProviderKind `json:"kind"`
	CostTier       int          `json:"cost_tier"`     // 1..3
	QualityScore   int          `json:"quality_score"` // 1..10
	MaxTokens      int          `json:"max_tokens"`
	SupportsArabic bool         `json:"supports_arabic"`
	CredentialRef  string       `json:"-"`
	Endpoint       string       `json:"endpoint,omitempty"`
}

// HasAccess reports whether the descriptor carries what its kind needs:
// a credential for cloud providers, an endpoint for local ones.
func (d ProviderDescriptor) HasAccess() bool {
	switch d.Kind {
	case ProviderCloudHosted:
		return len(d.CredentialRef) >= MinCredentialLength
	case ProviderLocalHosted:
		return d.Endpoint != ""
	default:
		return false
	}
}

// CompareProviders orders by cost tier ascending, then quality descending.
// Callers use a stable sort so insertion order breaks remaining ties.
func CompareProviders(a, b ProviderDescriptor) int {
	if c := cmp.Compare(a.CostTier, b.CostTier); c != 0 {
		return c
	}
	return cmp.Compare(b.QualityScore, a.QualityScore)
}

// DispatchOutcome is the result of one dispatcher call.
type DispatchOutcome struct {
	Success      bool   `json:"success"`
	Text         string `json:"text"`
	ProviderName string `json:"provider_name"`
	TokensUsed   int    `json:"tokens_used"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	Err          error  `json:"-"`
}
