package config

import (
	"time"

	"github.com/jackzampolin/hookline/internal/hooks"
	"github.com/jackzampolin/hookline/internal/music"
	"github.com/jackzampolin/hookline/internal/social"
)

// Config holds hookline configuration.
// Stored at: ~/.hookline/config.yaml
type Config struct {
	LogLevel     string                    `mapstructure:"log_level" yaml:"log_level"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Social       SocialCfg                 `mapstructure:"social" yaml:"social"`
	Scan         ScanCfg                   `mapstructure:"scan" yaml:"scan"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
}

// StorageCfg selects the document store backend.
type StorageCfg struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "fs", "sqlite" or "memory"
	Path    string `mapstructure:"path" yaml:"path"`       // empty means under the home directory
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"`       // "openrouter", "openai", "mock"
	Model          string  `mapstructure:"model" yaml:"model"`     // Model name
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default generation settings.
type DefaultsCfg struct {
	LLMProvider string  `mapstructure:"llm_provider" yaml:"llm_provider"`
	Model       string  `mapstructure:"model" yaml:"model"` // empty means the provider's model
	HookCount   int     `mapstructure:"hook_count" yaml:"hook_count"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// SocialCfg configures the social data API.
type SocialCfg struct {
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`
	Host           string  `mapstructure:"host" yaml:"host"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	PageSize       int     `mapstructure:"page_size" yaml:"page_size"`
}

// ScanCfg bounds music usage scans.
type ScanCfg struct {
	MaxConcurrency int     `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	CostCeiling    float64 `mapstructure:"cost_ceiling" yaml:"cost_ceiling"`
	CostPerHandle  float64 `mapstructure:"cost_per_handle" yaml:"cost_per_handle"`
	CostPerPage    float64 `mapstructure:"cost_per_page" yaml:"cost_per_page"`
	CostPerTrack   float64 `mapstructure:"cost_per_track" yaml:"cost_per_track"`
	TracksPerPage  float64 `mapstructure:"tracks_per_page" yaml:"tracks_per_page"`
	SourceVideoCap int     `mapstructure:"source_video_cap" yaml:"source_video_cap"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        string   `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	scan := music.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Storage: StorageCfg{
			Backend: "fs",
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:           "openrouter",
				Model:          "anthropic/claude-sonnet-4",
				APIKey:         "${OPENROUTER_API_KEY}",
				RateLimit:      5,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o-mini",
				APIKey:         "${OPENAI_API_KEY}",
				RateLimit:      5,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
			HookCount:   10,
			Temperature: 0.9,
		},
		Social: SocialCfg{
			BaseURL:        "https://tiktok-scraper7.p.rapidapi.com",
			APIKey:         "${RAPIDAPI_KEY}",
			Host:           "tiktok-scraper7.p.rapidapi.com",
			RateLimit:      5,
			TimeoutSeconds: 15,
			PageSize:       30,
		},
		Scan: ScanCfg{
			MaxConcurrency: scan.MaxConcurrency,
			CostCeiling:    scan.CostCeiling,
			CostPerHandle:  scan.CostPerHandle,
			CostPerPage:    scan.CostPerPage,
			CostPerTrack:   scan.CostPerTrack,
			TracksPerPage:  scan.TracksPerPage,
			SourceVideoCap: scan.SourceVideoCap,
		},
		Server: ServerCfg{
			Host:        "127.0.0.1",
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// SocialClientConfig returns the social client settings with API keys resolved.
func (c *Config) SocialClientConfig() social.Config {
	return social.Config{
		BaseURL:   c.Social.BaseURL,
		APIKey:    ResolveEnvVars(c.Social.APIKey),
		Host:      c.Social.Host,
		RateLimit: c.Social.RateLimit,
		Timeout:   seconds(c.Social.TimeoutSeconds),
		PageSize:  c.Social.PageSize,
	}
}

// ScanConfig returns the music scan settings. The per-call timeout follows
// the social API timeout.
func (c *Config) ScanConfig() music.Config {
	return music.Config{
		MaxConcurrency: c.Scan.MaxConcurrency,
		CostCeiling:    c.Scan.CostCeiling,
		CostPerHandle:  c.Scan.CostPerHandle,
		CostPerPage:    c.Scan.CostPerPage,
		CostPerTrack:   c.Scan.CostPerTrack,
		TracksPerPage:  c.Scan.TracksPerPage,
		SourceVideoCap: c.Scan.SourceVideoCap,
		CallTimeout:    seconds(c.Social.TimeoutSeconds),
	}
}

// HooksConfig returns the generation settings. The per-call timeout is the
// default provider's timeout_seconds.
func (c *Config) HooksConfig() hooks.Config {
	var timeout time.Duration
	if p, ok := c.GetLLMProvider(c.Defaults.LLMProvider); ok {
		timeout = seconds(p.TimeoutSeconds)
	}
	return hooks.Config{
		Provider:    c.Defaults.LLMProvider,
		Model:       c.Defaults.Model,
		HookCount:   c.Defaults.HookCount,
		Temperature: c.Defaults.Temperature,
		Timeout:     timeout,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
