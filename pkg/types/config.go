// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "gpt-5-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint (e.g. a local gateway). Empty uses
	// the provider default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout is the per-request timeout for API calls.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// CacheConfig holds settings for the rule cache.
type CacheConfig struct {
	// Path is the location of the JSON cache snapshot (e.g. "cache/rules.json").
	Path string `json:"path" yaml:"path"`

	// Enabled selects between cached mode and the extractor-only baseline.
	// When false the pipeline never reads or writes rules.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LearnerConfig holds settings for the rule-learning loop.
type LearnerConfig struct {
	// MaxAttempts bounds rule-generation proposals per (document, field)
	// (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// ResultsConfig holds settings for the run-results database.
type ResultsConfig struct {
	// Dir is the directory holding the SQLite results database (e.g. "results/").
	Dir string `json:"dir" yaml:"dir"`
}

// PipelineConfig groups all stage configurations for an extraction run.
type PipelineConfig struct {
	Extractor AIConfig      `json:"extractor" yaml:"extractor"`
	RuleGen   AIConfig      `json:"rule_gen" yaml:"rule_gen"`
	Cache     CacheConfig   `json:"cache" yaml:"cache"`
	Learner   LearnerConfig `json:"learner" yaml:"learner"`
	Results   ResultsConfig `json:"results" yaml:"results"`
}
