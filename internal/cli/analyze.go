package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Enqueue analysis work",
	Long: `Enqueue analysis work.

Queues an analyze job for a specific artifact, or for a skill's latest
artifact. The worker daemon picks the job up; re-analysis of the same
(artifact, analysis version) pair overwrites the previous result.

Examples:
  skillens analyze --artifact 4f0c...      # One artifact
  skillens analyze --skill ab12...         # Latest artifact of a skill`,
	RunE: runAnalyze,
}

var (
	analyzeArtifactID string
	analyzeSkillID    string
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeArtifactID, "artifact", "", "Artifact ID to analyze")
	analyzeCmd.Flags().StringVar(&analyzeSkillID, "skill", "", "Skill ID whose latest artifact to analyze")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	var artifact *models.SkillArtifact
	switch {
	case analyzeArtifactID != "":
		artifact, err = database.GetArtifact(analyzeArtifactID)
		if err != nil {
			return err
		}
		if artifact == nil {
			return fmt.Errorf("artifact not found: %s", analyzeArtifactID)
		}
	case analyzeSkillID != "":
		artifact, err = database.LatestArtifact(analyzeSkillID, cfg.Versions.ParseVersion)
		if err != nil {
			return err
		}
		if artifact == nil {
			return fmt.Errorf("skill %s has no artifact at parse version %s", analyzeSkillID, cfg.Versions.ParseVersion)
		}
	default:
		return fmt.Errorf("specify --artifact or --skill")
	}

	jobID, err := database.EnqueueJob(&models.AnalysisJob{
		JobType:    models.JobTypeAnalyze,
		SkillID:    &artifact.SkillID,
		ArtifactID: &artifact.ID,
		Payload: models.JobPayload{
			AnalysisVersion: cfg.Versions.AnalysisVersion,
			Reason:          "manual",
		},
	})
	if errors.Is(err, db.ErrAlreadyQueued) {
		fmt.Printf("Analyze job already open for artifact %s (job %s)\n", artifact.ID, jobID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Queued analyze job %s for artifact %s\n", jobID, artifact.ID)
	return nil
}
