package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, DefaultParseVersion, cfg.Versions.ParseVersion)
	require.Equal(t, DefaultAnalysisVersion, cfg.Versions.AnalysisVersion)
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Queue.BackoffBase)
	require.Equal(t, 7*24*time.Hour, cfg.Queue.RefreshWindow)
	require.False(t, cfg.LLM.Enabled)
	require.NotEmpty(t, cfg.BaseDir)
}

func TestLoadCreatesDirectories(t *testing.T) {
	base := filepath.Join(t.TempDir(), "skillens-home")
	t.Setenv("SKILLENS_BASE_DIR", base)
	t.Setenv("SKILLENS_CONFIG", filepath.Join(base, "config.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, base, cfg.BaseDir)

	for _, dir := range []string{base, filepath.Join(base, "repositories"), filepath.Join(base, "artifacts")} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		require.True(t, info.IsDir())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	base := t.TempDir()
	t.Setenv("SKILLENS_BASE_DIR", base)
	t.Setenv("SKILLENS_CONFIG", filepath.Join(base, "config.yaml"))
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SKILLENS_DEBUG", "1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ghp_test", cfg.GitHub.Token)
	require.Equal(t, "sk-test", cfg.LLM.OpenAIAPIKey)
	require.True(t, cfg.LLM.Enabled, "an API key enables validation")
	require.True(t, cfg.Debug)
}

func TestLoadConfigFile(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
github:
  rate_limit: 5
  use_git_clone: true
queue:
  max_attempts: 7
  lease_batch: 25
versions:
  parse_version: github_skill_v2
`), 0644))

	t.Setenv("SKILLENS_BASE_DIR", base)
	t.Setenv("SKILLENS_CONFIG", configPath)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.GitHub.RateLimit)
	require.True(t, cfg.GitHub.UseGitClone)
	require.Equal(t, 7, cfg.Queue.MaxAttempts)
	require.Equal(t, 25, cfg.Queue.LeaseBatch)
	require.Equal(t, "github_skill_v2", cfg.Versions.ParseVersion)
	require.Equal(t, DefaultAnalysisVersion, cfg.Versions.AnalysisVersion,
		"unset file keys keep defaults")
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("github:\n  token: from-file\n"), 0644))

	t.Setenv("SKILLENS_BASE_DIR", base)
	t.Setenv("SKILLENS_CONFIG", configPath)
	t.Setenv("GITHUB_TOKEN", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.GitHub.Token)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{not yaml"), 0644))

	t.Setenv("SKILLENS_BASE_DIR", base)
	t.Setenv("SKILLENS_CONFIG", configPath)

	_, err := Load()
	require.Error(t, err)
}

func TestGetPaths(t *testing.T) {
	cfg := &Config{BaseDir: "/data/skillens"}
	paths := GetPaths(cfg)

	require.Equal(t, filepath.Join("/data/skillens", "skillens.db"), paths.Database)
	require.Equal(t, filepath.Join("/data/skillens", "config.yaml"), paths.Config)
	require.Equal(t, filepath.Join("/data/skillens", "repositories"), paths.Repositories)
	require.Equal(t, filepath.Join("/data/skillens", "artifacts"), paths.Artifacts)
}
