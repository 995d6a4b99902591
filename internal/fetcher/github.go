package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultCacheTTL is the default TTL for cached responses.
	DefaultCacheTTL = 24 * time.Hour

	// AuthenticatedRateLimit is requests per minute with a token.
	AuthenticatedRateLimit = 20

	// UnauthenticatedRateLimit is requests per minute without a token.
	UnauthenticatedRateLimit = 5
)

// ResponseCache provides TTL-based caching for GitHub API responses.
type ResponseCache struct {
	data map[string]cacheEntry
	ttl  time.Duration
	mu   sync.RWMutex
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewResponseCache creates a new cache with the specified TTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
	}
}

// Get retrieves a value from the cache if it exists and hasn't expired.
func (c *ResponseCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache.
func (c *ResponseCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// GitHubClient fetches repository data through the GitHub API with rate
// limiting and transparent retry on transient failures.
type GitHubClient struct {
	client  *github.Client
	limiter *rate.Limiter
	cache   *ResponseCache
}

// NewGitHubClient creates a client. The token is optional; without it the
// client runs at the unauthenticated rate.
func NewGitHubClient(token string, requestsPerMinute int) *GitHubClient {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		if requestsPerMinute == 0 {
			requestsPerMinute = AuthenticatedRateLimit
		}
	} else if requestsPerMinute == 0 {
		requestsPerMinute = UnauthenticatedRateLimit
	}

	return &GitHubClient{
		client:  github.NewClient(httpClient),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		cache:   NewResponseCache(DefaultCacheTTL),
	}
}

// GetRepoTree fetches the default branch and the full recursive blob
// listing for a repository.
func (g *GitHubClient) GetRepoTree(ctx context.Context, owner, repo string) (*RepoTree, error) {
	cacheKey := fmt.Sprintf("tree:%s/%s", owner, repo)
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.(*RepoTree), nil
	}

	var repoInfo *github.Repository
	err := g.do(ctx, func() error {
		var apiErr error
		repoInfo, _, apiErr = g.client.Repositories.Get(ctx, owner, repo)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	branch := repoInfo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	var tree *github.Tree
	err = g.do(ctx, func() error {
		var apiErr error
		tree, _, apiErr = g.client.Git.GetTree(ctx, owner, repo, branch, true)
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("get tree %s/%s@%s: %w", owner, repo, branch, err)
	}

	result := &RepoTree{
		DefaultBranch: branch,
		CommitSHA:     tree.GetSHA(),
	}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		result.Entries = append(result.Entries, TreeEntry{
			Path: entry.GetPath(),
			SHA:  entry.GetSHA(),
			Size: int64(entry.GetSize()),
		})
	}

	g.cache.Set(cacheKey, result)
	return result, nil
}

// GetFileContent fetches a single file's decoded content at a ref.
func (g *GitHubClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	cacheKey := fmt.Sprintf("file:%s/%s@%s:%s", owner, repo, ref, path)
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	var file *github.RepositoryContent
	err := g.do(ctx, func() error {
		var apiErr error
		file, _, _, apiErr = g.client.Repositories.GetContents(ctx, owner, repo, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("get file %s/%s:%s: %w", owner, repo, path, err)
	}
	if file == nil {
		return "", fmt.Errorf("path %s is not a file", path)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode file %s: %w", path, err)
	}

	g.cache.Set(cacheKey, content)
	return content, nil
}

// do executes one API call behind the rate limiter, retrying transient
// failures (5xx, secondary rate limits). 404s and other client errors
// fail immediately.
func (g *GitHubClient) do(ctx context.Context, call func() error) error {
	return retry.Do(
		func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			if err := call(); err != nil {
				if !isTransient(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// isTransient reports whether an API error is worth retrying in-process.
func isTransient(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode >= 500
	}
	// Network-level errors have no typed response; retry them.
	return true
}
