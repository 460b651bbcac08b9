package config

import "github.com/bassam-ai/bassam/internal/domain"

// defaultProviders is the built-in registry. File and environment values win.
var defaultProviders = map[string]ProviderConfig{
	"gemini": {
		Transport: "gemini", Kind: string(domain.ProviderCloudHosted),
		Model: "gemini-2.0-flash", CostTier: 1, QualityScore: 8, MaxTokens: 2048,
	},
	"huggingface": {
		Transport: "openai", Kind: string(domain.ProviderCloudHosted),
		BaseURL: "https://router.huggingface.co/v1", Model: "meta-llama/Llama-3.1-8B-Instruct",
		CostTier: 1, QualityScore: 6, MaxTokens: 1024,
	},
	"perplexity": {
		Transport: "openai", Kind: string(domain.ProviderCloudHosted),
		BaseURL: "https://api.perplexity.ai", Model: "sonar",
		CostTier: 2, QualityScore: 8, MaxTokens: 1024,
	},
	"anthropic": {
		Transport: "anthropic", Kind: string(domain.ProviderCloudHosted),
		BaseURL: "https://api.anthropic.com", Model: "claude-3-5-haiku-latest",
		CostTier: 3, QualityScore: 9, MaxTokens: 1024,
	},
	"ollama": {
		Transport: "openai", Kind: string(domain.ProviderLocalHosted),
		BaseURL: "http://localhost:11434", Model: "llama3.1",
		CostTier: 1, QualityScore: 5, MaxTokens: 1024,
	},
	"bassam": {
		Transport: "openai", Kind: string(domain.ProviderLocalHosted),
		BaseURL: "http://localhost:8081", Model: "bassam",
		CostTier: 1, QualityScore: 4, MaxTokens: 512,
	},
}

func mergeProvider(p, def ProviderConfig) ProviderConfig {
	if p.Transport == "" {
		p.Transport = def.Transport
	}
	if p.Kind == "" {
		p.Kind = def.Kind
	}
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
	if p.Model == "" {
		p.Model = def.Model
	}
	if p.CostTier == 0 {
		p.CostTier = def.CostTier
	}
	if p.QualityScore == 0 {
		p.QualityScore = def.QualityScore
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = def.MaxTokens
	}
	return p
}
