package fetcher

import (
	"fmt"
	"strings"
)

// ParseRepositoryURL extracts owner and repo from a repository reference.
// Supported formats:
// - owner/repo
// - https://github.com/owner/repo[.git]
// - git@github.com:owner/repo[.git]
func ParseRepositoryURL(urlStr string) (owner, repo string, err error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", "", fmt.Errorf("repository URL cannot be empty")
	}

	switch {
	case !strings.Contains(urlStr, "://") && !strings.Contains(urlStr, "git@"):
		parts := strings.Split(urlStr, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid repository format: expected 'owner/repo', got '%s'", urlStr)
		}
		owner = parts[0]
		repo = strings.TrimSuffix(parts[1], ".git")

	case strings.HasPrefix(urlStr, "https://github.com/") || strings.HasPrefix(urlStr, "http://github.com/"):
		parts := strings.TrimPrefix(urlStr, "https://")
		parts = strings.TrimPrefix(parts, "http://")
		parts = strings.TrimPrefix(parts, "github.com/")
		pathParts := strings.Split(parts, "/")
		if len(pathParts) < 2 {
			return "", "", fmt.Errorf("invalid GitHub HTTPS URL: %s", urlStr)
		}
		owner = pathParts[0]
		repo = strings.TrimSuffix(pathParts[1], ".git")

	case strings.HasPrefix(urlStr, "git@github.com:"):
		parts := strings.TrimPrefix(urlStr, "git@github.com:")
		pathParts := strings.Split(parts, "/")
		if len(pathParts) < 2 {
			return "", "", fmt.Errorf("invalid GitHub SSH URL: %s", urlStr)
		}
		owner = pathParts[0]
		repo = strings.TrimSuffix(pathParts[1], ".git")

	default:
		return "", "", fmt.Errorf("unsupported repository URL format: %s", urlStr)
	}

	if !isValidGitHubName(owner) || !isValidGitHubName(repo) {
		return "", "", fmt.Errorf("invalid owner or repo name: owner=%s, repo=%s", owner, repo)
	}
	return owner, repo, nil
}

// isValidGitHubName validates a GitHub username or repository name:
// 1-39 characters, alphanumeric plus hyphen/underscore/dot, alphanumeric
// at both ends.
func isValidGitHubName(name string) bool {
	if len(name) == 0 || len(name) > 39 {
		return false
	}
	if !isAlphanumeric(rune(name[0])) || !isAlphanumeric(rune(name[len(name)-1])) {
		return false
	}
	for _, ch := range name {
		if !isAlphanumeric(ch) && ch != '-' && ch != '_' && ch != '.' {
			return false
		}
	}
	return true
}

func isAlphanumeric(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}
