package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillens/skillens/internal/models"
)

// EnqueueJob inserts a new job unless an equivalent open job already
// exists for the same target, in which case the existing job's ID is
// returned together with ErrAlreadyQueued. Dedup is enforced by the
// partial unique indexes, so the insert itself fails cleanly under
// concurrency; there is no pre-check race.
func (db *DB) EnqueueJob(job *models.AnalysisJob) (string, error) {
	if !job.JobType.IsValid() {
		return "", fmt.Errorf("unknown job type %q", job.JobType)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	// Priority 0 means unset; explicit urgency goes below the default,
	// negative values outrank everything.
	if job.Priority == 0 {
		job.Priority = models.DefaultPriority
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = db.retry.MaxAttempts
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = time.Now()
	}

	err := db.Create(job).Error
	if err == nil {
		return job.ID, nil
	}
	if !isDuplicateKey(err) {
		return "", fmt.Errorf("enqueue %s job: %w", job.JobType, err)
	}

	existing, findErr := db.findOpenJob(job)
	if findErr != nil {
		return "", fmt.Errorf("enqueue %s job: lookup open duplicate: %w", job.JobType, findErr)
	}
	return existing.ID, ErrAlreadyQueued
}

// findOpenJob returns the open job occupying the target's dedup slot.
func (db *DB) findOpenJob(job *models.AnalysisJob) (*models.AnalysisJob, error) {
	query := db.Where("job_type = ? AND status IN ?", job.JobType,
		[]models.JobStatus{models.JobStatusQueued, models.JobStatusRunning})

	switch job.JobType {
	case models.JobTypeFetchArtifacts:
		if job.SkillID == nil {
			return nil, ErrNotFound
		}
		query = query.Where("skill_id = ?", *job.SkillID)
	case models.JobTypeAnalyze:
		if job.ArtifactID == nil {
			return nil, ErrNotFound
		}
		query = query.Where("artifact_id = ?", *job.ArtifactID)
	}

	var existing models.AnalysisJob
	if err := query.First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &existing, nil
}

// LeaseJobs atomically claims up to limit eligible jobs for a worker.
// Eligible means queued with run_after in the past, ordered by priority
// then run_after (lower priority number = more urgent). Each claim is a
// conditional update guarded on status, so two concurrent leasers never
// receive the same job: the loser's update affects zero rows and the
// candidate is skipped.
func (db *DB) LeaseJobs(workerID string, jobTypes []models.JobType, limit int) ([]models.AnalysisJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(jobTypes) == 0 {
		jobTypes = models.AllJobTypes()
	}
	now := time.Now()

	var candidates []models.AnalysisJob
	err := db.Where("status = ? AND run_after <= ? AND job_type IN ?",
		models.JobStatusQueued, now, jobTypes).
		Order("priority ASC, run_after ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("select eligible jobs: %w", err)
	}

	leased := make([]models.AnalysisJob, 0, len(candidates))
	for _, job := range candidates {
		res := db.Model(&models.AnalysisJob{}).
			Where("id = ? AND status = ?", job.ID, models.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":     models.JobStatusRunning,
				"started_at": now,
				"worker_id":  workerID,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the claim to another worker.
			continue
		}
		job.Status = models.JobStatusRunning
		job.StartedAt = &now
		job.WorkerID = workerID
		leased = append(leased, job)
	}
	return leased, nil
}

// CompleteJob marks a running job done. Completing a job that is not
// running returns ErrStaleTransition: the lease expired or was reclaimed.
func (db *DB) CompleteJob(jobID string) error {
	now := time.Now()
	res := db.Model(&models.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":      models.JobStatusDone,
			"finished_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// FailJob records a failed attempt. With attempts remaining the job goes
// back to queued with exponential backoff; otherwise it fails terminally.
// Failing a job that is not running returns ErrStaleTransition.
func (db *DB) FailJob(jobID string, jobErr error) error {
	msg := "unknown error"
	if jobErr != nil {
		msg = jobErr.Error()
	}
	if len(msg) > 1000 {
		msg = msg[:1000]
	}

	return db.Transaction(func(tx *DB) error {
		var job models.AnalysisJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		if job.Status != models.JobStatusRunning {
			return ErrStaleTransition
		}

		now := time.Now()
		attempts := job.AttemptCount + 1
		updates := map[string]interface{}{
			"attempt_count": attempts,
			"last_error":    msg,
		}
		if attempts < job.MaxAttempts {
			updates["status"] = models.JobStatusQueued
			updates["run_after"] = now.Add(tx.retry.Backoff(attempts))
			updates["started_at"] = nil
			updates["worker_id"] = ""
		} else {
			updates["status"] = models.JobStatusFailed
			updates["finished_at"] = now
		}

		res := tx.Model(&models.AnalysisJob{}).
			Where("id = ? AND status = ?", jobID, models.JobStatusRunning).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("fail job %s: %w", jobID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		return nil
	})
}

// ReclaimStuckJobs requeues running jobs whose lease age exceeds the
// threshold. The running state signals exclusivity; a crashed worker
// leaves it set forever, so this sweep is required maintenance, not
// optional. Each reclaim is charged as an attempt; exhausted jobs fail
// terminally. Returns (requeued, failed).
func (db *DB) ReclaimStuckJobs(threshold time.Duration) (int, int, error) {
	cutoff := time.Now().Add(-threshold)

	var stuck []models.AnalysisJob
	err := db.Where("status = ? AND started_at < ?", models.JobStatusRunning, cutoff).
		Find(&stuck).Error
	if err != nil {
		return 0, 0, fmt.Errorf("select stuck jobs: %w", err)
	}

	requeued, failed := 0, 0
	now := time.Now()
	for _, job := range stuck {
		attempts := job.AttemptCount + 1
		updates := map[string]interface{}{
			"attempt_count": attempts,
			"last_error":    fmt.Sprintf("reclaimed: lease held by %s exceeded %s", job.WorkerID, threshold),
		}
		if attempts < job.MaxAttempts {
			updates["status"] = models.JobStatusQueued
			updates["run_after"] = now
			updates["started_at"] = nil
			updates["worker_id"] = ""
		} else {
			updates["status"] = models.JobStatusFailed
			updates["finished_at"] = now
		}

		res := db.Model(&models.AnalysisJob{}).
			Where("id = ? AND status = ? AND started_at < ?", job.ID, models.JobStatusRunning, cutoff).
			Updates(updates)
		if res.Error != nil {
			return requeued, failed, fmt.Errorf("reclaim job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// The job completed between select and update.
			continue
		}
		if attempts < job.MaxAttempts {
			requeued++
		} else {
			failed++
		}
	}
	return requeued, failed, nil
}

// GetJob retrieves a job by ID.
func (db *DB) GetJob(jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// CountOpenJobs returns the number of open jobs for a target.
func (db *DB) CountOpenJobs(jobType models.JobType, targetID string) (int64, error) {
	query := db.Model(&models.AnalysisJob{}).
		Where("job_type = ? AND status IN ?", jobType,
			[]models.JobStatus{models.JobStatusQueued, models.JobStatusRunning})
	switch jobType {
	case models.JobTypeFetchArtifacts:
		query = query.Where("skill_id = ?", targetID)
	case models.JobTypeAnalyze:
		query = query.Where("artifact_id = ?", targetID)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// isDuplicateKey detects unique-constraint violations. TranslateError
// maps them to gorm.ErrDuplicatedKey; the string check covers driver
// paths the translator misses.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
