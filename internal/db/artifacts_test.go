package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/models"
)

func TestInsertArtifactIdempotent(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	first := testArtifact(t, db, skill.ID, "hash-1")

	// A retried fetch inserting the same triple converges on the
	// existing row.
	again, err := db.InsertArtifact(&models.SkillArtifact{
		SkillID:      skill.ID,
		ParseVersion: "github_skill_v1",
		ArtifactHash: "hash-1",
		SkillMDPath:  "my-skill/SKILL.md",
		FetchStatus:  models.FetchStatusDone,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	count, err := db.CountArtifacts(skill.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestInsertArtifactNewHashNewRow(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	first := testArtifact(t, db, skill.ID, "hash-1")
	second := testArtifact(t, db, skill.ID, "hash-2")
	require.NotEqual(t, first.ID, second.ID)

	count, err := db.CountArtifacts(skill.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count, "history accumulates, rows are never replaced")
}

func TestInsertArtifactStoresManifest(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	stored, err := db.InsertArtifact(&models.SkillArtifact{
		SkillID:      skill.ID,
		ParseVersion: "github_skill_v1",
		ArtifactHash: "hash-1",
		SkillMDPath:  "my-skill/SKILL.md",
		FetchStatus:  models.FetchStatusDone,
		FilesManifest: []models.FileManifestEntry{
			{Path: "my-skill/SKILL.md", ContentHash: "abc", Size: 120, StorageKey: "my-skill/SKILL.md"},
			{Path: "my-skill/run.py", ContentHash: "def", Size: 64, StorageKey: "my-skill/run.py"},
		},
	})
	require.NoError(t, err)

	reloaded, err := db.GetArtifact(stored.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	require.Len(t, reloaded.FilesManifest, 2)
	require.Equal(t, "my-skill/run.py", reloaded.FilesManifest[1].Path)
}

func TestLatestArtifactScopedToParseVersion(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")
	testArtifact(t, db, skill.ID, "hash-1")

	latest, err := db.LatestArtifact(skill.ID, "github_skill_v1")
	require.NoError(t, err)
	require.NotNil(t, latest)

	other, err := db.LatestArtifact(skill.ID, "github_skill_v2")
	require.NoError(t, err)
	require.Nil(t, other, "a parse version bump makes every artifact stale")
}

func TestListArtifactsMissingAnalysis(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	analyzed := testArtifact(t, db, skill.ID, "hash-1")
	missing := testArtifact(t, db, skill.ID, "hash-2")

	_, err := db.EnsureAnalysis(analyzed, "a1")
	require.NoError(t, err)

	artifacts, err := db.ListArtifactsMissingAnalysis("a1", 100)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, missing.ID, artifacts[0].ID)

	// At a newer analysis version both are missing.
	artifacts, err = db.ListArtifactsMissingAnalysis("a2", 100)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
}
