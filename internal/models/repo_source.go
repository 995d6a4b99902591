package models

import "time"

// FetchStatus tracks the lifecycle of a fetch against an upstream repo.
type FetchStatus string

const (
	FetchStatusQueued  FetchStatus = "queued"
	FetchStatusRunning FetchStatus = "running"
	FetchStatusDone    FetchStatus = "done"
	FetchStatusFailed  FetchStatus = "failed"
)

// IsValid checks if the status is a known value.
func (s FetchStatus) IsValid() bool {
	switch s {
	case FetchStatusQueued, FetchStatusRunning, FetchStatusDone, FetchStatusFailed:
		return true
	}
	return false
}

// RepoSource is one row per distinct repository URL backing one or more
// skills. Created on first reference, mutated by fetch attempts.
type RepoSource struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	RepositoryURL string `gorm:"size:500;uniqueIndex" json:"repository_url"`
	Provider      string `gorm:"size:50;default:github" json:"provider"`
	Owner         string `gorm:"size:100;index" json:"owner"`
	Repo          string `gorm:"size:100;index" json:"repo"`
	DefaultBranch string `gorm:"size:100" json:"default_branch"`

	// Fetch bookkeeping
	FetchStatus   FetchStatus `gorm:"size:20;default:queued;index" json:"fetch_status"`
	AttemptCount  int         `gorm:"default:0" json:"attempt_count"`
	LastError     string      `gorm:"size:1000" json:"last_error"`
	LastFetchedAt *time.Time  `json:"last_fetched_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (RepoSource) TableName() string {
	return "repo_sources"
}
