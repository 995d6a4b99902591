// Package fetcher retrieves skill source content from upstream
// repositories and turns it into versioned, content-addressed artifacts.
package fetcher

import "context"

// TreeEntry is one blob in a repository tree listing.
type TreeEntry struct {
	Path string
	SHA  string
	Size int64
}

// RepoTree is a repository snapshot: default branch, head commit, and the
// full blob listing.
type RepoTree struct {
	DefaultBranch string
	CommitSHA     string
	Entries       []TreeEntry
}

// Client fetches repository data. GitHubClient is API-based; GitClient
// works from local clones and avoids API rate limits.
type Client interface {
	GetRepoTree(ctx context.Context, owner, repo string) (*RepoTree, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}
