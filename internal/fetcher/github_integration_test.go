package fetcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/testutil"
)

// Exercises the real GitHub API path against a small stable repository.
func TestGitHubClientFetchesRepoTree(t *testing.T) {
	testutil.SkipNetworkTests(t)

	client := NewGitHubClient(os.Getenv("GITHUB_TOKEN"), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tree, err := client.GetRepoTree(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	require.NotEmpty(t, tree.DefaultBranch)
	require.NotEmpty(t, tree.CommitSHA)
	require.NotEmpty(t, tree.Entries)

	var readmePath string
	for _, entry := range tree.Entries {
		if entry.Path == "README" || entry.Path == "README.md" {
			readmePath = entry.Path
			break
		}
	}
	require.NotEmpty(t, readmePath, "repository should list a README blob")

	content, err := client.GetFileContent(ctx, "octocat", "Hello-World", readmePath, tree.DefaultBranch)
	require.NoError(t, err)
	require.NotEmpty(t, content)

	// Second call must come from the response cache.
	cached, err := client.GetRepoTree(ctx, "octocat", "Hello-World")
	require.NoError(t, err)
	require.Equal(t, tree.CommitSHA, cached.CommitSHA)
}
