package cli

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/skillens/skillens/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline counters",
	Long:  `Show catalog, artifact, analysis, and job queue counters.`,
	RunE:  runStats,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	queuedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

func runStats(cmd *cobra.Command, args []string) error {
	_, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	stats, err := database.GetStats()
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}

	fmt.Println(headerStyle.Render("Pipeline"))
	fmt.Printf("  Skills:    %d\n", stats.TotalSkills)
	fmt.Printf("  Artifacts: %d\n", stats.TotalArtifacts)
	fmt.Printf("  Analyses:  %d\n", stats.TotalAnalyses)

	fmt.Println()
	fmt.Println(headerStyle.Render("Job queue"))
	if len(stats.JobsByStatus) == 0 {
		fmt.Println("  (empty)")
		return nil
	}

	statuses := make([]string, 0, len(stats.JobsByStatus))
	for status := range stats.JobsByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		count := stats.JobsByStatus[models.JobStatus(status)]
		line := fmt.Sprintf("  %-8s %d", status, count)
		switch models.JobStatus(status) {
		case models.JobStatusQueued, models.JobStatusRunning:
			line = queuedStyle.Render(line)
		case models.JobStatusDone:
			line = doneStyle.Render(line)
		case models.JobStatusFailed:
			line = failedStyle.Render(line)
		}
		fmt.Println(line)
	}
	return nil
}
