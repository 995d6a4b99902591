package freshness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/hash"
	"github.com/skillens/skillens/internal/models"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(db.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func testSkill(t *testing.T, database *db.DB, slug string) *models.Skill {
	t.Helper()

	skill := &models.Skill{
		Source:        "skills.sh",
		Owner:         "acme",
		Repo:          "skills",
		SkillSlug:     slug,
		Title:         slug,
		RepositoryURL: "https://github.com/acme/skills",
		FirstSeenAt:   time.Now(),
		LastSeenAt:    time.Now(),
	}
	skill.ID = hash.TruncatedSHA256(skill.IdentityKey())
	require.NoError(t, database.UpsertSkill(skill))
	return skill
}

func testArtifact(t *testing.T, database *db.DB, skillID string, fetchedAt time.Time) *models.SkillArtifact {
	t.Helper()

	artifact, err := database.InsertArtifact(&models.SkillArtifact{
		SkillID:      skillID,
		ParseVersion: "github_skill_v1",
		ArtifactHash: "hash-" + skillID,
		SkillMDPath:  "skill/SKILL.md",
		FetchStatus:  models.FetchStatusDone,
		FetchedAt:    &fetchedAt,
	})
	require.NoError(t, err)
	return artifact
}

func testPolicy(database *db.DB) *Policy {
	return New(database, Config{
		ParseVersion:    "github_skill_v1",
		AnalysisVersion: "a1",
		RefreshWindow:   24 * time.Hour,
	})
}

func TestSweepEnqueuesFetchForMissingArtifact(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "new-skill")

	stats, err := testPolicy(database).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.SkillsExamined)
	require.Equal(t, 1, stats.FetchEnqueued)
	require.Zero(t, stats.Deduplicated)

	open, err := database.CountOpenJobs(models.JobTypeFetchArtifacts, skill.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, open)
}

func TestSweepDeduplicatesRepeatedRuns(t *testing.T) {
	database := testDB(t)
	testSkill(t, database, "new-skill")

	policy := testPolicy(database)
	_, err := policy.Sweep(context.Background())
	require.NoError(t, err)

	stats, err := policy.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.FetchEnqueued)
	require.Equal(t, 1, stats.Deduplicated)
}

func TestSweepSkipsFreshArtifact(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "fresh-skill")
	artifact := testArtifact(t, database, skill.ID, time.Now())

	// The fresh artifact has an analysis, so nothing to do at all.
	_, err := database.EnsureAnalysis(artifact, "a1")
	require.NoError(t, err)

	stats, err := testPolicy(database).Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.FetchEnqueued)
	require.Zero(t, stats.AnalyzeEnqueued)
}

func TestSweepRefetchesStaleArtifact(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "stale-skill")
	artifact := testArtifact(t, database, skill.ID, time.Now().Add(-48*time.Hour))
	_, err := database.EnsureAnalysis(artifact, "a1")
	require.NoError(t, err)

	stats, err := testPolicy(database).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FetchEnqueued)
}

func TestSweepBackfillsMissingAnalyses(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "fetched-skill")
	artifact := testArtifact(t, database, skill.ID, time.Now())

	stats, err := testPolicy(database).Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.FetchEnqueued)
	require.Equal(t, 1, stats.AnalyzeEnqueued)

	open, err := database.CountOpenJobs(models.JobTypeAnalyze, artifact.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, open)
}

func TestSweepAnalyzeVersionBump(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "versioned-skill")
	artifact := testArtifact(t, database, skill.ID, time.Now())
	_, err := database.EnsureAnalysis(artifact, "a1")
	require.NoError(t, err)

	// Bump the analysis version: the same artifact needs re-analysis
	// without a refetch.
	bumped := New(database, Config{
		ParseVersion:    "github_skill_v1",
		AnalysisVersion: "a2",
		RefreshWindow:   24 * time.Hour,
	})
	stats, err := bumped.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.FetchEnqueued)
	require.Equal(t, 1, stats.AnalyzeEnqueued)
}

func TestSweepParseVersionBumpForcesRefetch(t *testing.T) {
	database := testDB(t)
	skill := testSkill(t, database, "parse-bumped")
	testArtifact(t, database, skill.ID, time.Now())

	bumped := New(database, Config{
		ParseVersion:    "github_skill_v2",
		AnalysisVersion: "a1",
		RefreshWindow:   24 * time.Hour,
	})
	stats, err := bumped.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.FetchEnqueued, "old parse version artifacts do not count")
}

func TestSweepHonorsContextCancellation(t *testing.T) {
	database := testDB(t)
	testSkill(t, database, "any-skill")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPolicy(database).Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
