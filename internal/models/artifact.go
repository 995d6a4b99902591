package models

import "time"

// FileManifestEntry describes one file captured in an artifact snapshot.
type FileManifestEntry struct {
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
	StorageKey  string `json:"storage_key"`
}

// SkillArtifact is one immutable versioned snapshot of a skill's source
// content. Identical content under the same parser never produces a
// second row: (skill_id, artifact_hash, parse_version) is unique. A
// content change produces a new artifact row, never a mutation.
type SkillArtifact struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	SkillID      string  `gorm:"size:64;index;uniqueIndex:idx_artifact_identity" json:"skill_id"`
	RepoSourceID *string `gorm:"size:36;index" json:"repo_source_id"`

	ParseVersion string `gorm:"size:50;uniqueIndex:idx_artifact_identity" json:"parse_version"`
	ArtifactHash string `gorm:"size:64;uniqueIndex:idx_artifact_identity" json:"artifact_hash"`

	// Storage
	SkillMDPath   string              `gorm:"size:500" json:"skill_md_path"`
	StoragePrefix string              `gorm:"size:500" json:"storage_prefix"`
	FilesManifest []FileManifestEntry `gorm:"serializer:json" json:"files_manifest"`

	// Fetch bookkeeping
	FetchStatus  FetchStatus `gorm:"size:20;default:queued;index" json:"fetch_status"`
	AttemptCount int         `gorm:"default:0" json:"attempt_count"`
	LastError    string      `gorm:"size:1000" json:"last_error"`
	FetchedAt    *time.Time  `json:"fetched_at"`

	// Owned analyses (cascade-deleted with the artifact)
	Analyses []SkillAnalysis `gorm:"foreignKey:ArtifactID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (SkillArtifact) TableName() string {
	return "skill_artifacts"
}
