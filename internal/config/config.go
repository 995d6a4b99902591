// Package config handles application configuration management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Base directory for all SkilLens data (~/.skillens)
	BaseDir string `yaml:"base_dir"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`

	// GitHub fetch settings
	GitHub GitHubConfig `yaml:"github"`

	// Queue tuning knobs
	Queue QueueConfig `yaml:"queue"`

	// Pipeline version markers
	Versions VersionConfig `yaml:"versions"`

	// LLM settings for selective finding validation
	LLM LLMConfig `yaml:"llm"`
}

// GitHubConfig holds GitHub fetch settings.
type GitHubConfig struct {
	Token string `yaml:"token"`
	// Requests per minute against the GitHub API.
	RateLimit int `yaml:"rate_limit"`
	// UseGitClone fetches via git clone instead of the contents API.
	UseGitClone bool `yaml:"use_git_clone"`
	// Days to keep cloned repositories before cleanup.
	RepoCacheTTL int `yaml:"repo_cache_ttl"`
}

// QueueConfig holds job queue tuning knobs. All durations are knobs, not
// constants: deployments size them to their upstream rate limits.
type QueueConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	ReclaimThreshold time.Duration `yaml:"reclaim_threshold"`
	RefreshWindow    time.Duration `yaml:"refresh_window"`
	LeaseBatch       int           `yaml:"lease_batch"`
	Concurrency      int           `yaml:"concurrency"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	HandlerTimeout   time.Duration `yaml:"handler_timeout"`
}

// VersionConfig pins the parser and analyzer versions. Advancing either
// value makes existing artifacts or analyses stale.
type VersionConfig struct {
	ParseVersion    string `yaml:"parse_version"`
	AnalysisVersion string `yaml:"analysis_version"`
}

// LLMConfig holds OpenAI settings for security finding validation.
type LLMConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	Model        string `yaml:"model"`
	// Enabled is derived from the API key unless set explicitly.
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from the optional YAML config file and then
// environment variables. Env vars win over file values.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := configFilePath(cfg); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if base := os.Getenv("SKILLENS_BASE_DIR"); base != "" {
		cfg.BaseDir = base
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.OpenAIAPIKey = apiKey
		cfg.LLM.Enabled = true
	}
	if os.Getenv("SKILLENS_DEBUG") != "" {
		cfg.Debug = true
	}

	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges a YAML config file into cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func configFilePath(cfg *Config) string {
	if path := os.Getenv("SKILLENS_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(cfg.BaseDir, "config.yaml")
}

// ensureDirectories creates required directories if they don't exist.
func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.BaseDir,
		filepath.Join(cfg.BaseDir, "repositories"),
		filepath.Join(cfg.BaseDir, "artifacts"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
