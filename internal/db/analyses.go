package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillens/skillens/internal/models"
)

// EnsureAnalysis marks an analysis row running for the artifact at the
// given version, creating it if absent. Re-invocation for the same
// (artifact, analysis_version) reuses the existing row: the unique
// constraint turns the insert into an update, so re-analysis overwrites
// instead of appending.
func (db *DB) EnsureAnalysis(artifact *models.SkillArtifact, analysisVersion string) (*models.SkillAnalysis, error) {
	now := time.Now()
	analysis := &models.SkillAnalysis{
		ID:              uuid.NewString(),
		SkillID:         artifact.SkillID,
		RepoSourceID:    artifact.RepoSourceID,
		ArtifactID:      artifact.ID,
		AnalysisVersion: analysisVersion,
		Status:          models.AnalysisStatusRunning,
		StartedAt:       &now,
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "artifact_id"}, {Name: "analysis_version"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":        models.AnalysisStatusRunning,
			"started_at":    now,
			"completed_at":  nil,
			"error_message": "",
			"updated_at":    now,
		}),
	}).Create(analysis).Error
	if err != nil {
		return nil, fmt.Errorf("ensure analysis: %w", err)
	}

	var stored models.SkillAnalysis
	err = db.First(&stored,
		"artifact_id = ? AND analysis_version = ?", artifact.ID, analysisVersion).Error
	if err != nil {
		return nil, fmt.Errorf("reload analysis: %w", err)
	}
	return &stored, nil
}

// AnalysisResult carries the combined analyzer outputs written on
// completion.
type AnalysisResult struct {
	OverallScore   float64
	TrustBadge     string
	SecurityData   json.RawMessage
	QualityData    json.RawMessage
	BehaviorData   json.RawMessage
	DependencyData json.RawMessage
}

// CompleteAnalysis writes analyzer results and marks the row done.
func (db *DB) CompleteAnalysis(analysisID string, result *AnalysisResult) error {
	now := time.Now()
	return db.Model(&models.SkillAnalysis{}).
		Where("id = ?", analysisID).
		Updates(map[string]interface{}{
			"status":          models.AnalysisStatusDone,
			"overall_score":   result.OverallScore,
			"trust_badge":     result.TrustBadge,
			"security_data":   string(result.SecurityData),
			"quality_data":    string(result.QualityData),
			"behavior_data":   string(result.BehaviorData),
			"dependency_data": string(result.DependencyData),
			"completed_at":    now,
			"error_message":   "",
		}).Error
}

// FailAnalysis marks the row failed with the captured error.
func (db *DB) FailAnalysis(analysisID string, analysisErr error) error {
	msg := ""
	if analysisErr != nil {
		msg = analysisErr.Error()
	}
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	now := time.Now()
	return db.Model(&models.SkillAnalysis{}).
		Where("id = ?", analysisID).
		Updates(map[string]interface{}{
			"status":        models.AnalysisStatusFailed,
			"completed_at":  now,
			"error_message": msg,
		}).Error
}

// GetAnalysis retrieves an analysis by ID. Returns nil when not found.
func (db *DB) GetAnalysis(id string) (*models.SkillAnalysis, error) {
	var analysis models.SkillAnalysis
	err := db.First(&analysis, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &analysis, nil
}

// LatestAnalysisForArtifact returns the analysis row at the given
// version, or nil when none exists.
func (db *DB) LatestAnalysisForArtifact(artifactID, analysisVersion string) (*models.SkillAnalysis, error) {
	var analysis models.SkillAnalysis
	err := db.Where("artifact_id = ? AND analysis_version = ?", artifactID, analysisVersion).
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &analysis, nil
}

// LatestDoneAnalysisForSkill returns the newest done analysis across the
// skill's artifacts. The serving layer reads catalog results through
// this: a failed re-analysis leaves the last good result visible.
func (db *DB) LatestDoneAnalysisForSkill(skillID string) (*models.SkillAnalysis, error) {
	var analysis models.SkillAnalysis
	err := db.Where("skill_id = ? AND status = ?", skillID, models.AnalysisStatusDone).
		Order("completed_at DESC").
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &analysis, nil
}

// CountAnalyses returns the analysis count for one artifact.
func (db *DB) CountAnalyses(artifactID string) (int64, error) {
	var count int64
	err := db.Model(&models.SkillAnalysis{}).
		Where("artifact_id = ?", artifactID).
		Count(&count).Error
	return count, err
}
