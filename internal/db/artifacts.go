package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillens/skillens/internal/models"
)

// InsertArtifact records a new artifact snapshot. The insert is an
// insert-or-ignore on (skill_id, artifact_hash, parse_version), so a
// retried fetch that already wrote the row is a no-op rather than a
// duplicate: the stored row is returned either way.
func (db *DB) InsertArtifact(artifact *models.SkillArtifact) (*models.SkillArtifact, error) {
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.FetchedAt == nil {
		now := time.Now()
		artifact.FetchedAt = &now
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "skill_id"}, {Name: "parse_version"}, {Name: "artifact_hash"},
		},
		DoNothing: true,
	}).Create(artifact).Error
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	var stored models.SkillArtifact
	err = db.First(&stored,
		"skill_id = ? AND parse_version = ? AND artifact_hash = ?",
		artifact.SkillID, artifact.ParseVersion, artifact.ArtifactHash).Error
	if err != nil {
		return nil, fmt.Errorf("reload artifact: %w", err)
	}
	return &stored, nil
}

// GetArtifact retrieves an artifact by ID. Returns nil when not found.
func (db *DB) GetArtifact(id string) (*models.SkillArtifact, error) {
	var artifact models.SkillArtifact
	err := db.First(&artifact, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

// LatestArtifact returns the most recent artifact for a skill at the
// given parse version, or nil when none exists.
func (db *DB) LatestArtifact(skillID, parseVersion string) (*models.SkillArtifact, error) {
	var artifact models.SkillArtifact
	err := db.Where("skill_id = ? AND parse_version = ?", skillID, parseVersion).
		Order("created_at DESC").
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

// CountArtifacts returns the artifact count for a skill across versions.
func (db *DB) CountArtifacts(skillID string) (int64, error) {
	var count int64
	err := db.Model(&models.SkillArtifact{}).
		Where("skill_id = ?", skillID).
		Count(&count).Error
	return count, err
}

// TouchArtifactFetched refreshes an artifact's fetched_at after an
// unchanged refetch, so the freshness sweep stops treating it as stale.
func (db *DB) TouchArtifactFetched(id string) error {
	return db.Model(&models.SkillArtifact{}).
		Where("id = ?", id).
		Update("fetched_at", time.Now()).Error
}

// ListArtifactsMissingAnalysis returns done artifacts that have no
// analysis row at the given version. Used by the freshness sweep.
func (db *DB) ListArtifactsMissingAnalysis(analysisVersion string, limit int) ([]models.SkillArtifact, error) {
	var artifacts []models.SkillArtifact
	err := db.Where("fetch_status = ?", models.FetchStatusDone).
		Where("id NOT IN (?)",
			db.DB.Model(&models.SkillAnalysis{}).
				Select("artifact_id").
				Where("analysis_version = ?", analysisVersion)).
		Order("created_at DESC").
		Limit(limit).
		Find(&artifacts).Error
	return artifacts, err
}
