package models

import (
	"encoding/json"
	"time"
)

// AnalysisStatus tracks the lifecycle of one analysis run.
type AnalysisStatus string

const (
	AnalysisStatusQueued  AnalysisStatus = "queued"
	AnalysisStatusRunning AnalysisStatus = "running"
	AnalysisStatusDone    AnalysisStatus = "done"
	AnalysisStatusFailed  AnalysisStatus = "failed"
)

// IsValid checks if the status is a known value.
func (s AnalysisStatus) IsValid() bool {
	switch s {
	case AnalysisStatusQueued, AnalysisStatusRunning, AnalysisStatusDone, AnalysisStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is done or failed.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusDone || s == AnalysisStatusFailed
}

// SkillAnalysis is one computed result set for one artifact under one
// analysis version. (artifact_id, analysis_version) is unique: re-running
// the same analyzer version against the same artifact overwrites.
type SkillAnalysis struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	SkillID      string  `gorm:"size:64;index" json:"skill_id"`
	RepoSourceID *string `gorm:"size:36" json:"repo_source_id"`
	ArtifactID   string  `gorm:"size:36;uniqueIndex:idx_analysis_identity" json:"artifact_id"`

	AnalysisVersion string         `gorm:"size:50;uniqueIndex:idx_analysis_identity" json:"analysis_version"`
	Status          AnalysisStatus `gorm:"size:20;default:queued;index" json:"status"`

	// Combined result
	OverallScore float64 `gorm:"default:0" json:"overall_score"`
	TrustBadge   string  `gorm:"size:50" json:"trust_badge"`

	// Per-analyzer result blobs
	SecurityData   json.RawMessage `gorm:"serializer:json" json:"security_data"`
	QualityData    json.RawMessage `gorm:"serializer:json" json:"quality_data"`
	BehaviorData   json.RawMessage `gorm:"serializer:json" json:"behavior_data"`
	DependencyData json.RawMessage `gorm:"serializer:json" json:"dependency_data"`

	// Timing and errors
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage string     `gorm:"size:1000" json:"error_message"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (SkillAnalysis) TableName() string {
	return "skill_analyses"
}
