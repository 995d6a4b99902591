package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/models"
)

func TestEnsureRepoSourceUpserts(t *testing.T) {
	database := testDB(t)

	first, err := database.EnsureRepoSource(&models.RepoSource{
		RepositoryURL: "https://github.com/acme/skills",
		Provider:      "github",
		Owner:         "acme",
		Repo:          "skills",
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, models.FetchStatusQueued, first.FetchStatus)

	second, err := database.EnsureRepoSource(&models.RepoSource{
		RepositoryURL: "https://github.com/acme/skills",
		Provider:      "github",
		Owner:         "acme",
		Repo:          "skills",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same URL, same row")
}

func TestRepoSourceFetchLifecycle(t *testing.T) {
	database := testDB(t)

	src, err := database.EnsureRepoSource(&models.RepoSource{
		RepositoryURL: "https://github.com/acme/skills",
		Provider:      "github",
		Owner:         "acme",
		Repo:          "skills",
	})
	require.NoError(t, err)

	require.NoError(t, database.MarkRepoSourceRunning(src.ID))
	require.NoError(t, database.MarkRepoSourceFailed(src.ID, errors.New("tree fetch timed out")))

	stored, err := database.GetRepoSource(src.ID)
	require.NoError(t, err)
	require.Equal(t, models.FetchStatusFailed, stored.FetchStatus)
	require.Equal(t, 1, stored.AttemptCount)
	require.Equal(t, "tree fetch timed out", stored.LastError)

	require.NoError(t, database.MarkRepoSourceDone(src.ID, "main"))

	stored, err = database.GetRepoSource(src.ID)
	require.NoError(t, err)
	require.Equal(t, models.FetchStatusDone, stored.FetchStatus)
	require.Equal(t, "main", stored.DefaultBranch)
	require.Empty(t, stored.LastError, "success clears the prior error")
	require.NotNil(t, stored.LastFetchedAt)

	// Ensure after a failure keeps the recorded status visible.
	require.NoError(t, database.MarkRepoSourceFailed(src.ID, errors.New("second failure")))
	again, err := database.EnsureRepoSource(&models.RepoSource{
		RepositoryURL: "https://github.com/acme/skills",
		Provider:      "github",
		Owner:         "acme",
		Repo:          "skills",
	})
	require.NoError(t, err)
	require.Equal(t, models.FetchStatusFailed, again.FetchStatus)
	require.Equal(t, 2, again.AttemptCount)
}
