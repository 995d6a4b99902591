package models

import (
	"time"
)

// JobType is the closed set of work the pipeline knows how to run.
type JobType string

const (
	JobTypeFetchArtifacts JobType = "fetch_artifacts"
	JobTypeAnalyze        JobType = "analyze"
)

// IsValid checks if the job type is a known value.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeFetchArtifacts, JobTypeAnalyze:
		return true
	}
	return false
}

// AllJobTypes returns every known job type.
func AllJobTypes() []JobType {
	return []JobType{JobTypeFetchArtifacts, JobTypeAnalyze}
}

// JobStatus tracks the queue lifecycle of a job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// IsOpen reports whether the job still occupies its target's dedup slot.
func (s JobStatus) IsOpen() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// JobPayload carries job-type-specific parameters.
type JobPayload struct {
	ParseVersion    string `json:"parse_version,omitempty"`
	AnalysisVersion string `json:"analysis_version,omitempty"`
	AnalysisID      string `json:"analysis_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// DefaultPriority is the priority assigned when callers leave Priority
// at its zero value. Lower number = higher urgency; callers that need to
// outrank the default use explicit values below it, negative included.
const DefaultPriority = 100

// AnalysisJob is one unit of queued work. Partial unique indexes on the
// table keep at most one open (queued or running) job per
// (skill, fetch_artifacts) and per (artifact, analyze) target.
type AnalysisJob struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	JobType  JobType   `gorm:"size:30;index" json:"job_type"`
	Status   JobStatus `gorm:"size:20;index" json:"status"`
	Priority int       `gorm:"default:100;index" json:"priority"`

	// Target references. Jobs reference but do not own their targets.
	SkillID      *string `gorm:"size:64;index" json:"skill_id"`
	RepoSourceID *string `gorm:"size:36" json:"repo_source_id"`
	ArtifactID   *string `gorm:"size:36;index" json:"artifact_id"`

	Payload JobPayload `gorm:"serializer:json" json:"payload"`

	// Retry bookkeeping
	AttemptCount int    `gorm:"default:0" json:"attempt_count"`
	MaxAttempts  int    `gorm:"default:3" json:"max_attempts"`
	LastError    string `gorm:"size:1000" json:"last_error"`

	// Scheduling
	RunAfter   time.Time  `gorm:"index" json:"run_after"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	WorkerID   string     `gorm:"size:100" json:"worker_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// TargetKey returns the dedup target for logging: the skill for fetch
// jobs, the artifact for analyze jobs.
func (j *AnalysisJob) TargetKey() string {
	switch j.JobType {
	case JobTypeFetchArtifacts:
		if j.SkillID != nil {
			return *j.SkillID
		}
	case JobTypeAnalyze:
		if j.ArtifactID != nil {
			return *j.ArtifactID
		}
	}
	return ""
}
