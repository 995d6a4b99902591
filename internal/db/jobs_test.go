package db

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/models"
)

func TestEnqueueJobDedup(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	firstID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, firstID)

	// Same target while the first job is open: dedup returns the
	// existing job's ID.
	secondID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.ErrorIs(t, err, ErrAlreadyQueued)
	require.Equal(t, firstID, secondID)

	count, err := db.CountOpenJobs(models.JobTypeFetchArtifacts, skill.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestEnqueueJobDedupScopedToType(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")
	artifact := testArtifact(t, db, skill.ID, "hash-1")

	_, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)

	// An analyze job for the same skill is a different target slot.
	_, err = db.EnqueueJob(&models.AnalysisJob{
		JobType:    models.JobTypeAnalyze,
		SkillID:    &skill.ID,
		ArtifactID: &artifact.ID,
	})
	require.NoError(t, err)
}

func TestEnqueueJobAfterTerminalState(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	firstID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)

	leased, err := db.LeaseJobs("w1", nil, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	require.NoError(t, db.CompleteJob(firstID))

	// Done jobs vacate the dedup slot.
	secondID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)
	require.NotEqual(t, firstID, secondID)
}

func TestEnqueueJobRejectsUnknownType(t *testing.T) {
	db := testDB(t)

	_, err := db.EnqueueJob(&models.AnalysisJob{JobType: "mystery"})
	require.Error(t, err)
}

func TestLeaseJobsOrdering(t *testing.T) {
	db := testDB(t)

	var ids []string
	for i := 0; i < 3; i++ {
		skill := testSkill(t, db, fmt.Sprintf("skill-%d", i))
		id, err := db.EnqueueJob(&models.AnalysisJob{
			JobType:  models.JobTypeFetchArtifacts,
			SkillID:  &skill.ID,
			Priority: 100 - i*10, // later enqueues are more urgent
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	leased, err := db.LeaseJobs("w1", nil, 10)
	require.NoError(t, err)
	require.Len(t, leased, 3)
	require.Equal(t, ids[2], leased[0].ID, "lowest priority number first")
	require.Equal(t, ids[0], leased[2].ID)

	for _, job := range leased {
		require.Equal(t, models.JobStatusRunning, job.Status)
		require.Equal(t, "w1", job.WorkerID)
		require.NotNil(t, job.StartedAt)
	}
}

func TestEnqueueJobPrioritySemantics(t *testing.T) {
	db := testDB(t)

	skillDefault := testSkill(t, db, "default-priority")
	defaultID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skillDefault.ID,
	})
	require.NoError(t, err)

	stored, err := db.GetJob(defaultID)
	require.NoError(t, err)
	require.Equal(t, models.DefaultPriority, stored.Priority, "zero priority means unset")

	// Negative priority is the representable most-urgent value.
	skillUrgent := testSkill(t, db, "urgent-priority")
	urgentID, err := db.EnqueueJob(&models.AnalysisJob{
		JobType:  models.JobTypeFetchArtifacts,
		SkillID:  &skillUrgent.ID,
		Priority: -1,
	})
	require.NoError(t, err)

	leased, err := db.LeaseJobs("w1", nil, 10)
	require.NoError(t, err)
	require.Len(t, leased, 2)
	require.Equal(t, urgentID, leased[0].ID, "negative priority outranks the default")
}

func TestLeaseJobsSkipsFutureRunAfter(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	_, err := db.EnqueueJob(&models.AnalysisJob{
		JobType:  models.JobTypeFetchArtifacts,
		SkillID:  &skill.ID,
		RunAfter: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	leased, err := db.LeaseJobs("w1", nil, 10)
	require.NoError(t, err)
	require.Empty(t, leased)
}

func TestLeaseJobsExclusive(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 20; i++ {
		skill := testSkill(t, db, fmt.Sprintf("skill-%d", i))
		_, err := db.EnqueueJob(&models.AnalysisJob{
			JobType: models.JobTypeFetchArtifacts,
			SkillID: &skill.ID,
		})
		require.NoError(t, err)
	}

	var (
		mu    sync.Mutex
		seen  = map[string]int{}
		wg    sync.WaitGroup
		errCh = make(chan error, 4)
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			leased, err := db.LeaseJobs(fmt.Sprintf("w%d", worker), nil, 20)
			if err != nil {
				errCh <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, job := range leased {
				seen[job.ID]++
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, seen, 20, "every job leased exactly once")
	for id, count := range seen {
		require.Equal(t, 1, count, "job %s leased by multiple workers", id)
	}
}

func TestCompleteJobStaleTransition(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	id, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)

	// Still queued: completing is a stale transition.
	require.ErrorIs(t, db.CompleteJob(id), ErrStaleTransition)

	_, err = db.LeaseJobs("w1", nil, 1)
	require.NoError(t, err)
	require.NoError(t, db.CompleteJob(id))

	// Already done.
	require.ErrorIs(t, db.CompleteJob(id), ErrStaleTransition)
}

func TestFailJobRequeuesWithBackoff(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	id, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)

	_, err = db.LeaseJobs("w1", nil, 1)
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, db.FailJob(id, errors.New("upstream 502")))

	job, err := db.GetJob(id)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusQueued, job.Status)
	require.Equal(t, 1, job.AttemptCount)
	require.Equal(t, "upstream 502", job.LastError)
	require.Empty(t, job.WorkerID)
	require.Nil(t, job.StartedAt)

	// First retry waits at least the base backoff.
	require.True(t, job.RunAfter.After(before.Add(29*time.Second)),
		"run_after = %v, want >= %v", job.RunAfter, before.Add(30*time.Second))
}

func TestFailJobTerminalAfterMaxAttempts(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	id, err := db.EnqueueJob(&models.AnalysisJob{
		JobType:     models.JobTypeFetchArtifacts,
		SkillID:     &skill.ID,
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		// Force eligibility regardless of backoff.
		require.NoError(t, db.Model(&models.AnalysisJob{}).
			Where("id = ?", id).
			Update("run_after", time.Now().Add(-time.Second)).Error)

		leased, err := db.LeaseJobs("w1", nil, 1)
		require.NoError(t, err)
		require.Len(t, leased, 1, "attempt %d should lease", attempt)
		require.NoError(t, db.FailJob(id, errors.New("boom")))
	}

	job, err := db.GetJob(id)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, job.Status)
	require.Equal(t, 2, job.AttemptCount)
	require.NotNil(t, job.FinishedAt)

	// Terminal failure vacates the dedup slot.
	_, err = db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)
}

func TestFailJobStaleTransition(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	id, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)

	require.ErrorIs(t, db.FailJob(id, errors.New("boom")), ErrStaleTransition)
	require.ErrorIs(t, db.FailJob("no-such-job", errors.New("boom")), ErrNotFound)
}

func TestReclaimStuckJobs(t *testing.T) {
	db := testDB(t)

	skillA := testSkill(t, db, "skill-a")
	skillB := testSkill(t, db, "skill-b")

	idA, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skillA.ID,
	})
	require.NoError(t, err)
	idB, err := db.EnqueueJob(&models.AnalysisJob{
		JobType:     models.JobTypeFetchArtifacts,
		SkillID:     &skillB.ID,
		MaxAttempts: 1,
	})
	require.NoError(t, err)

	leased, err := db.LeaseJobs("crashed-worker", nil, 10)
	require.NoError(t, err)
	require.Len(t, leased, 2)

	// Age the leases past the threshold.
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.AnalysisJob{}).
		Where("id IN ?", []string{idA, idB}).
		Update("started_at", stale).Error)

	requeued, failed, err := db.ReclaimStuckJobs(30 * time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)
	require.Equal(t, 1, failed)

	jobA, err := db.GetJob(idA)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusQueued, jobA.Status)
	require.Equal(t, 1, jobA.AttemptCount, "reclaim charges an attempt")
	require.Contains(t, jobA.LastError, "reclaimed")

	jobB, err := db.GetJob(idB)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, jobB.Status, "exhausted job fails terminally")
}

func TestReclaimIgnoresFreshLeases(t *testing.T) {
	db := testDB(t)
	skill := testSkill(t, db, "my-skill")

	id, err := db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
	})
	require.NoError(t, err)
	_, err = db.LeaseJobs("w1", nil, 1)
	require.NoError(t, err)

	requeued, failed, err := db.ReclaimStuckJobs(30 * time.Minute)
	require.NoError(t, err)
	require.Zero(t, requeued)
	require.Zero(t, failed)

	job, err := db.GetJob(id)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusRunning, job.Status)
}
