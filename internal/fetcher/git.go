package fetcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/skillens/skillens/internal/hash"
)

// DefaultRepoTimeout is the per-repository timeout for clone/fetch
// operations.
const DefaultRepoTimeout = 2 * time.Minute

// recentUpdateTTL suppresses refetches when multiple jobs touch the same
// repository back to back.
const recentUpdateTTL = 60 * time.Second

// GitClient fetches repository data from local git clones instead of the
// API, eliminating rate limits for public repositories.
type GitClient struct {
	baseDir string
	token   string

	mu              sync.Mutex
	repoLocks       map[string]*sync.Mutex
	recentlyUpdated map[string]time.Time
}

// NewGitClient creates a clone-based client rooted at baseDir.
func NewGitClient(token, baseDir string) *GitClient {
	return &GitClient{
		baseDir:         baseDir,
		token:           token,
		repoLocks:       make(map[string]*sync.Mutex),
		recentlyUpdated: make(map[string]time.Time),
	}
}

// repoPath returns the local path for a repository.
func (gc *GitClient) repoPath(owner, repo string) string {
	return filepath.Join(gc.baseDir, owner, repo)
}

func (gc *GitClient) repoLock(owner, repo string) *sync.Mutex {
	key := owner + "/" + repo
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.repoLocks[key] == nil {
		gc.repoLocks[key] = &sync.Mutex{}
	}
	return gc.repoLocks[key]
}

func (gc *GitClient) wasRecentlyUpdated(owner, repo string) bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if t, ok := gc.recentlyUpdated[owner+"/"+repo]; ok {
		return time.Since(t) < recentUpdateTTL
	}
	return false
}

func (gc *GitClient) markRecentlyUpdated(owner, repo string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.recentlyUpdated[owner+"/"+repo] = time.Now()
}

// cloneOrUpdate makes sure a current working copy exists and returns its
// path. Concurrent calls for the same repo serialize on a per-repo lock.
func (gc *GitClient) cloneOrUpdate(ctx context.Context, owner, repo string) (string, error) {
	lock := gc.repoLock(owner, repo)
	lock.Lock()
	defer lock.Unlock()

	localPath := gc.repoPath(owner, repo)

	ctx, cancel := context.WithTimeout(ctx, DefaultRepoTimeout)
	defer cancel()

	if _, err := os.Stat(filepath.Join(localPath, ".git")); os.IsNotExist(err) {
		cloneURL := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
		opts := &git.CloneOptions{
			URL:   cloneURL,
			Depth: 1,
		}
		if gc.token != "" {
			opts.Auth = &gitHttp.BasicAuth{Username: "token", Password: gc.token}
		}
		if _, err := git.PlainCloneContext(ctx, localPath, false, opts); err != nil {
			_ = os.RemoveAll(localPath)
			return "", fmt.Errorf("clone %s/%s: %w", owner, repo, err)
		}
		gc.markRecentlyUpdated(owner, repo)
		return localPath, nil
	}

	if gc.wasRecentlyUpdated(owner, repo) {
		return localPath, nil
	}

	r, err := git.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s/%s: %w", owner, repo, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree %s/%s: %w", owner, repo, err)
	}
	pullOpts := &git.PullOptions{Force: true}
	if gc.token != "" {
		pullOpts.Auth = &gitHttp.BasicAuth{Username: "token", Password: gc.token}
	}
	if err := wt.PullContext(ctx, pullOpts); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("pull %s/%s: %w", owner, repo, err)
	}
	gc.markRecentlyUpdated(owner, repo)
	return localPath, nil
}

// GetRepoTree lists every file in the working copy.
func (gc *GitClient) GetRepoTree(ctx context.Context, owner, repo string) (*RepoTree, error) {
	localPath, err := gc.cloneOrUpdate(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	result := &RepoTree{DefaultBranch: "HEAD"}

	if r, err := git.PlainOpen(localPath); err == nil {
		if head, err := r.Head(); err == nil {
			result.CommitSHA = head.Hash().String()
			if head.Name().IsBranch() {
				result.DefaultBranch = head.Name().Short()
			}
		}
	}

	err = filepath.WalkDir(localPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		result.Entries = append(result.Entries, TreeEntry{
			Path: filepath.ToSlash(rel),
			SHA:  hash.TruncatedSHA256(fmt.Sprintf("%s@%d", rel, info.ModTime().UnixNano())),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s/%s: %w", owner, repo, err)
	}
	return result, nil
}

// GetFileContent reads a file from the working copy. The ref argument is
// ignored: a working copy only has its checked-out head.
func (gc *GitClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	localPath, err := gc.cloneOrUpdate(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	// Reject traversal outside the working copy.
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid repository path: %s", path)
	}

	data, err := os.ReadFile(filepath.Join(localPath, cleaned))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
