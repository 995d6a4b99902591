package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillens/skillens/internal/models"
)

// EnsureRepoSource upserts a repo source keyed by repository URL and
// returns the stored row. The first reference creates the row; later
// calls refresh provider/owner/repo.
func (db *DB) EnsureRepoSource(src *models.RepoSource) (*models.RepoSource, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repository_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "owner", "repo", "updated_at",
		}),
	}).Create(src).Error
	if err != nil {
		return nil, err
	}

	var stored models.RepoSource
	if err := db.First(&stored, "repository_url = ?", src.RepositoryURL).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetRepoSource retrieves a repo source by ID. Returns nil when not found.
func (db *DB) GetRepoSource(id string) (*models.RepoSource, error) {
	var src models.RepoSource
	err := db.First(&src, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &src, nil
}

// MarkRepoSourceRunning records the start of a fetch attempt.
func (db *DB) MarkRepoSourceRunning(id string) error {
	return db.Model(&models.RepoSource{}).
		Where("id = ?", id).
		Update("fetch_status", models.FetchStatusRunning).Error
}

// MarkRepoSourceDone records a successful fetch, clearing any prior error.
func (db *DB) MarkRepoSourceDone(id, defaultBranch string) error {
	now := time.Now()
	return db.Model(&models.RepoSource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"fetch_status":    models.FetchStatusDone,
			"default_branch":  defaultBranch,
			"last_error":      "",
			"last_fetched_at": now,
		}).Error
}

// MarkRepoSourceFailed records a failed fetch attempt.
func (db *DB) MarkRepoSourceFailed(id string, fetchErr error) error {
	msg := ""
	if fetchErr != nil {
		msg = fetchErr.Error()
	}
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return db.Model(&models.RepoSource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"fetch_status":  models.FetchStatusFailed,
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}
