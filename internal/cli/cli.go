// Package cli provides the command-line interface for SkilLens.
package cli

import (
	"context"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/skillens/skillens/internal/config"
	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/fetcher"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "skillens",
	Short: "Skill catalog analysis pipeline",
	Long: `Skill catalog analysis pipeline

SkilLens discovers AI agent skills from public catalogs, snapshots their
repository content into immutable artifacts, and runs a security and
quality analyzer suite over each snapshot. Work flows through a
deduplicating job queue so discovery, fetching, and analysis can run
concurrently and restart safely.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// Execute runs the CLI with fang enhancements.
func Execute(ctx context.Context) error {
	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(version.Short()),
		fang.WithCommit(version.Commit),
	)
}

// openRuntime loads configuration and opens the pipeline database.
func openRuntime() (*config.Config, *db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := log.Init(cfg.Debug); err != nil {
		return nil, nil, err
	}

	paths := config.GetPaths(cfg)
	dbCfg := db.DefaultConfig(paths.Database)
	dbCfg.Debug = cfg.Debug
	dbCfg.Retry = db.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
	}
	database, err := db.New(dbCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

// buildRepoClient picks the content client per config: git clones avoid
// API rate limits, the API client avoids local clone storage.
func buildRepoClient(cfg *config.Config) fetcher.Client {
	if cfg.GitHub.UseGitClone {
		return fetcher.NewGitClient(cfg.GitHub.Token, config.GetPaths(cfg).Repositories)
	}
	return fetcher.NewGitHubClient(cfg.GitHub.Token, cfg.GitHub.RateLimit)
}
