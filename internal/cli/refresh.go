package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillens/skillens/internal/freshness"
	"github.com/skillens/skillens/internal/log"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one freshness sweep",
	Long: `Run one freshness sweep.

Enqueues fetch jobs for skills whose content snapshot is missing, stale,
or behind the current parse version, and analyze jobs for artifacts
missing a result at the current analysis version. Already-queued work is
deduplicated, so refresh is safe to run at any time.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()
	defer log.Sync()

	policy := freshness.New(database, freshness.Config{
		ParseVersion:    cfg.Versions.ParseVersion,
		AnalysisVersion: cfg.Versions.AnalysisVersion,
		RefreshWindow:   cfg.Queue.RefreshWindow,
	})

	stats, err := policy.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("freshness sweep: %w", err)
	}

	fmt.Printf("Examined %d skill(s)\n", stats.SkillsExamined)
	fmt.Printf("Enqueued %d fetch job(s), %d analyze job(s)\n", stats.FetchEnqueued, stats.AnalyzeEnqueued)
	if stats.Deduplicated > 0 {
		fmt.Printf("Skipped %d already-queued job(s)\n", stats.Deduplicated)
	}
	return nil
}
