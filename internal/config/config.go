package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bassam-ai/bassam/internal/domain"
)

// Config holds the assistant configuration.
type Config struct {
	HTTP         HTTPConfig                `yaml:"http"`
	Paths        PathsConfig               `yaml:"paths"`
	Cache        CacheConfig               `yaml:"cache"`
	Database     DatabaseConfig            `yaml:"database"`
	Redis        RedisConfig               `yaml:"redis"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Local        LocalConfig               `yaml:"local"`
	Search       SearchConfig              `yaml:"search"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator"`
	Logging      LoggingConfig             `yaml:"logging"`
	Auth         AuthConfig                `yaml:"auth"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys means auth is off.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PathsConfig locates on-disk state. DataDir and every corpus dir must exist.
type PathsConfig struct {
	DataDir      string   `yaml:"data_dir"`
	CorpusDirs   []string `yaml:"corpus_dirs"`
	KVDir        string   `yaml:"kv_dir"`        // default <data_dir>/kv
	SQLitePath   string   `yaml:"sqlite_path"`   // default <data_dir>/bassam.db
	CountersFile string   `yaml:"counters_file"` // default <data_dir>/counters.json
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	SizeMB                 int `yaml:"size_mb"`
	MaxEntries             int `yaml:"max_entries"`
	MaintenanceIntervalMin int `yaml:"maintenance_interval_min"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	MaxConnections int `yaml:"max_connections"`
}

// RedisConfig enables the Redis durable tier when Addrs is non-empty.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig describes one LLM provider.
type ProviderConfig struct {
	Transport     string `yaml:"transport"` // gemini, anthropic, openai
	Kind          string `yaml:"kind"`      // cloud_hosted, local_hosted
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	CostTier      int    `yaml:"cost_tier"`
	QualityScore  int    `yaml:"quality_score"`
	MaxTokens     int    `yaml:"max_tokens"`
	DailyRequests int64  `yaml:"daily_requests"` // 0 = unlimited
	DailyTokens   int64  `yaml:"daily_tokens"`   // 0 = unlimited
}

// LocalConfig gates locally hosted providers.
type LocalConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	ModelPath string `yaml:"model_path"` // weights file enabling the bassam provider
}

// LocalEnabled reports whether local providers are probed.
func (l LocalConfig) LocalEnabled() bool { return l.Enabled == nil || *l.Enabled }

// SearchConfig holds web search settings.
type SearchConfig struct {
	Endpoint        string   `yaml:"endpoint"`
	UserAgent       string   `yaml:"user_agent"`
	FetchTimeoutSec int      `yaml:"fetch_timeout_sec"`
	MaxSources      int      `yaml:"max_sources"`
	PreferredHosts  []string `yaml:"preferred_hosts"`
}

// OrchestratorConfig holds per-request budgets.
type OrchestratorConfig struct {
	RequestTimeoutSec  int `yaml:"request_timeout_sec"`
	ProviderTimeoutSec int `yaml:"provider_timeout_sec"`
	MaxTokens          int `yaml:"max_tokens"`
}

// Load reads config/<env>.yaml, applies environment overrides and defaults,
// then validates. A missing file yields defaults.
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(configPath))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	default:
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

var credentialEnv = map[string]string{
	"gemini":      "GEMINI_API_KEY",
	"anthropic":   "ANTHROPIC_API_KEY",
	"perplexity":  "PERPLEXITY_API_KEY",
	"huggingface": "HF_TOKEN",
}

// ApplyEnv overrides file values with the recognized environment keys.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, key := range credentialEnv {
		if v := getenv(key); v != "" {
			p := c.Providers[name]
			p.APIKey = v
			c.Providers[name] = p
		}
	}
	if v := getenv("OLLAMA_ENDPOINT"); v != "" {
		p := c.Providers["ollama"]
		p.BaseURL = v
		c.Providers["ollama"] = p
	}
	if v := getenv("BASSAM_ENDPOINT"); v != "" {
		p := c.Providers["bassam"]
		p.BaseURL = v
		c.Providers["bassam"] = p
	}
	if v := getenv("BASSAM_MODEL"); v != "" {
		c.Local.ModelPath = v
	}
	if v, err := strconv.Atoi(getenv("CACHE_SIZE_MB")); err == nil {
		c.Cache.SizeMB = v
	}
	if v, err := strconv.ParseBool(getenv("ENABLE_LOCAL_MODELS")); err == nil {
		c.Local.Enabled = &v
	}
	if v, err := strconv.Atoi(getenv("DATABASE_MAX_CONNECTIONS")); err == nil {
		c.Database.MaxConnections = v
	}
	if v, err := strconv.Atoi(getenv("PORT")); err == nil {
		c.HTTP.Port = v
	}
	if v := getenv("REDIS_ADDRS"); v != "" {
		c.Redis.Addrs = splitList(v)
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60 // covers the 45 s request budget
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.CorpusDirs == nil {
		c.Paths.CorpusDirs = []string{"knowledge"}
	}
	if c.Paths.KVDir == "" {
		c.Paths.KVDir = filepath.Join(c.Paths.DataDir, "kv")
	}
	if c.Paths.SQLitePath == "" {
		c.Paths.SQLitePath = filepath.Join(c.Paths.DataDir, "bassam.db")
	}
	if c.Paths.CountersFile == "" {
		c.Paths.CountersFile = filepath.Join(c.Paths.DataDir, "counters.json")
	}

	if c.Cache.SizeMB == 0 {
		c.Cache.SizeMB = 100
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10_000
	}
	if c.Cache.MaintenanceIntervalMin <= 0 {
		c.Cache.MaintenanceIntervalMin = 60
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 5
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}

	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, def := range defaultProviders {
		c.Providers[name] = mergeProvider(c.Providers[name], def)
	}

	if c.Search.Endpoint == "" {
		c.Search.Endpoint = "https://html.duckduckgo.com/html/"
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = "Mozilla/5.0 (compatible; BassamBot/1.0; +https://bassam.ai/bot)"
	}
	if c.Search.FetchTimeoutSec <= 0 {
		c.Search.FetchTimeoutSec = 12
	}
	if c.Search.MaxSources <= 0 {
		c.Search.MaxSources = 3
	}

	if c.Orchestrator.RequestTimeoutSec <= 0 {
		c.Orchestrator.RequestTimeoutSec = 45
	}
	if c.Orchestrator.ProviderTimeoutSec <= 0 {
		c.Orchestrator.ProviderTimeoutSec = 30
	}
	if c.Orchestrator.MaxTokens <= 0 {
		c.Orchestrator.MaxTokens = 1024
	}
}

// Validate checks the configuration. Missing directories yield *domain.ConfigError.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return &domain.ConfigError{Field: "http.port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.HTTP.Port)}
	}
	if c.Cache.SizeMB < 0 {
		return &domain.ConfigError{Field: "cache.size_mb", Reason: "must not be negative"}
	}
	if c.Database.MaxConnections <= 0 {
		return &domain.ConfigError{Field: "database.max_connections", Reason: "must be positive"}
	}
	if err := requireDir("paths.data_dir", c.Paths.DataDir); err != nil {
		return err
	}
	for i, d := range c.Paths.CorpusDirs {
		if err := requireDir(fmt.Sprintf("paths.corpus_dirs[%d]", i), d); err != nil {
			return err
		}
	}
	for name, p := range c.Providers {
		switch p.Transport {
		case "gemini", "anthropic", "openai":
		default:
			return &domain.ConfigError{
				Field:  "providers." + name + ".transport",
				Reason: fmt.Sprintf(`must be "gemini", "anthropic" or "openai", got %q`, p.Transport),
			}
		}
		switch domain.ProviderKind(p.Kind) {
		case domain.ProviderCloudHosted, domain.ProviderLocalHosted:
		default:
			return &domain.ConfigError{
				Field:  "providers." + name + ".kind",
				Reason: fmt.Sprintf(`must be "cloud_hosted" or "local_hosted", got %q`, p.Kind),
			}
		}
		if p.DailyRequests < 0 || p.DailyTokens < 0 {
			return &domain.ConfigError{Field: "providers." + name, Reason: "quotas must not be negative"}
		}
	}
	return nil
}

// CacheBytes is the in-memory cache cap in bytes.
func (c *Config) CacheBytes() int64 { return int64(c.Cache.SizeMB) << 20 }

func requireDir(field, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return &domain.ConfigError{Field: field, Reason: fmt.Sprintf("directory %q not found", path)}
	}
	if !st.IsDir() {
		return &domain.ConfigError{Field: field, Reason: fmt.Sprintf("%q is not a directory", path)}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from package dirs.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b)))
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
