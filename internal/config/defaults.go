package config

import "time"

// Default version markers. Advancing ParseVersion re-fetches every skill;
// advancing AnalysisVersion re-analyzes every artifact.
const (
	DefaultParseVersion    = "github_skill_v1"
	DefaultAnalysisVersion = "a1"
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),
		GitHub: GitHubConfig{
			RateLimit:    20,
			UseGitClone:  false,
			RepoCacheTTL: 7,
		},
		Queue: QueueConfig{
			MaxAttempts:      3,
			BackoffBase:      30 * time.Second,
			BackoffCap:       time.Hour,
			ReclaimThreshold: 30 * time.Minute,
			RefreshWindow:    7 * 24 * time.Hour,
			LeaseBatch:       10,
			Concurrency:      4,
			PollInterval:     5 * time.Second,
			HandlerTimeout:   10 * time.Minute,
		},
		Versions: VersionConfig{
			ParseVersion:    DefaultParseVersion,
			AnalysisVersion: DefaultAnalysisVersion,
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
	}
}
