package cli

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skillens/skillens/internal/analysis"
	"github.com/skillens/skillens/internal/config"
	"github.com/skillens/skillens/internal/fetcher"
	"github.com/skillens/skillens/internal/freshness"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
	"github.com/skillens/skillens/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline worker daemon",
	Long: `Run the pipeline worker daemon.

The daemon polls the job queue and executes fetch and analyze jobs, and
runs periodic maintenance: freshness sweeps enqueue refetch and
re-analysis work, reclaim sweeps recover jobs abandoned by crashed
workers. Multiple daemons can share one database; job leasing keeps each
job on a single worker.`,
	RunE: runWorker,
}

var (
	workerSweepSchedule   string
	workerReclaimSchedule string
	workerNoSweep         bool
)

func init() {
	workerCmd.Flags().StringVar(&workerSweepSchedule, "sweep-schedule", "@every 15m", "Cron schedule for freshness sweeps")
	workerCmd.Flags().StringVar(&workerReclaimSchedule, "reclaim-schedule", "@every 5m", "Cron schedule for stuck-job reclaim")
	workerCmd.Flags().BoolVar(&workerNoSweep, "no-sweep", false, "Disable periodic sweeps (queue processing only)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()
	defer log.Sync()

	ctx := cmd.Context()
	paths := config.GetPaths(cfg)
	client := buildRepoClient(cfg)

	fetchHandler := fetcher.New(database, client, fetcher.Config{
		ParseVersion: cfg.Versions.ParseVersion,
		ArtifactsDir: paths.Artifacts,
	})

	var validator *analysis.Validator
	if cfg.LLM.Enabled {
		validator = analysis.NewValidator(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model)
	}
	analyzeHandler := analysis.NewOrchestrator(database, validator, analysis.Config{
		AnalysisVersion: cfg.Versions.AnalysisVersion,
		ArtifactsDir:    paths.Artifacts,
	})

	runner := worker.New(database, worker.Options{
		LeaseBatch:     cfg.Queue.LeaseBatch,
		Concurrency:    cfg.Queue.Concurrency,
		PollInterval:   cfg.Queue.PollInterval,
		HandlerTimeout: cfg.Queue.HandlerTimeout,
	})
	runner.Register(models.JobTypeFetchArtifacts, fetchHandler)
	runner.Register(models.JobTypeAnalyze, analyzeHandler)

	policy := freshness.New(database, freshness.Config{
		ParseVersion:    cfg.Versions.ParseVersion,
		AnalysisVersion: cfg.Versions.AnalysisVersion,
		RefreshWindow:   cfg.Queue.RefreshWindow,
	})

	if !workerNoSweep {
		scheduler := cron.New()
		_, err = scheduler.AddFunc(workerSweepSchedule, func() {
			if _, sweepErr := policy.Sweep(ctx); sweepErr != nil && ctx.Err() == nil {
				log.L().Error("freshness sweep failed", zap.Error(sweepErr))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid sweep schedule: %w", err)
		}
		_, err = scheduler.AddFunc(workerReclaimSchedule, func() {
			requeued, failed, reclaimErr := database.ReclaimStuckJobs(cfg.Queue.ReclaimThreshold)
			if reclaimErr != nil {
				log.L().Error("reclaim sweep failed", zap.Error(reclaimErr))
				return
			}
			if requeued > 0 || failed > 0 {
				log.L().Info("reclaimed stuck jobs",
					zap.Int("requeued", requeued),
					zap.Int("failed", failed))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid reclaim schedule: %w", err)
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
