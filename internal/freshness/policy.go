// Package freshness decides which skills need refetching and which
// artifacts need analysis, and enqueues the work.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
)

const sweepBatchSize = 500

// Config holds the freshness policy knobs.
type Config struct {
	ParseVersion    string
	AnalysisVersion string
	RefreshWindow   time.Duration
}

// SweepStats counts what one sweep enqueued.
type SweepStats struct {
	FetchEnqueued   int
	AnalyzeEnqueued int
	Deduplicated    int
	SkillsExamined  int
}

// Policy runs the freshness sweep. Sweeps are safe to run concurrently
// and repeatedly: enqueue dedup collapses overlapping decisions.
type Policy struct {
	db  *db.DB
	cfg Config
}

// New creates a freshness policy.
func New(database *db.DB, cfg Config) *Policy {
	return &Policy{db: database, cfg: cfg}
}

// Sweep walks the catalog and enqueues fetch jobs for skills whose
// content snapshot is missing, stale, or behind the current parse
// version, then enqueues analyze jobs for done artifacts missing a
// result at the current analysis version.
func (p *Policy) Sweep(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{}

	for offset := 0; ; offset += sweepBatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		skills, err := p.db.ListSkills(sweepBatchSize, offset)
		if err != nil {
			return stats, fmt.Errorf("list skills: %w", err)
		}
		if len(skills) == 0 {
			break
		}
		for i := range skills {
			skill := &skills[i]
			stats.SkillsExamined++

			needsFetch, reason, err := p.needsFetch(skill)
			if err != nil {
				return stats, err
			}
			if !needsFetch {
				continue
			}
			p.enqueueFetch(skill, reason, stats)
		}
		if len(skills) < sweepBatchSize {
			break
		}
	}

	if err := p.enqueueMissingAnalyses(stats); err != nil {
		return stats, err
	}

	log.L().Info("freshness sweep complete",
		zap.Int("skills_examined", stats.SkillsExamined),
		zap.Int("fetch_enqueued", stats.FetchEnqueued),
		zap.Int("analyze_enqueued", stats.AnalyzeEnqueued),
		zap.Int("deduplicated", stats.Deduplicated))
	return stats, nil
}

// needsFetch reports whether a skill's snapshot is missing, behind the
// current parse version, or older than the refresh window.
func (p *Policy) needsFetch(skill *models.Skill) (bool, string, error) {
	latest, err := p.db.LatestArtifact(skill.ID, p.cfg.ParseVersion)
	if err != nil {
		return false, "", fmt.Errorf("latest artifact for %s: %w", skill.ID, err)
	}
	if latest == nil {
		return true, "no_artifact", nil
	}
	fetchedAt := latest.CreatedAt
	if latest.FetchedAt != nil {
		fetchedAt = *latest.FetchedAt
	}
	if time.Since(fetchedAt) >= p.cfg.RefreshWindow {
		return true, "stale", nil
	}
	return false, "", nil
}

func (p *Policy) enqueueFetch(skill *models.Skill, reason string, stats *SweepStats) {
	_, err := p.db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
		Payload: models.JobPayload{
			ParseVersion: p.cfg.ParseVersion,
			Reason:       reason,
		},
	})
	switch {
	case errors.Is(err, db.ErrAlreadyQueued):
		stats.Deduplicated++
	case err != nil:
		log.L().Warn("enqueue fetch job",
			zap.String("skill_id", skill.ID), zap.Error(err))
	default:
		stats.FetchEnqueued++
	}
}

// enqueueMissingAnalyses backfills analyze jobs for done artifacts with
// no result at the current analysis version. This is what advances the
// catalog after an analyzer version bump without refetching content.
func (p *Policy) enqueueMissingAnalyses(stats *SweepStats) error {
	artifacts, err := p.db.ListArtifactsMissingAnalysis(p.cfg.AnalysisVersion, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("list artifacts missing analysis: %w", err)
	}
	for i := range artifacts {
		artifact := &artifacts[i]
		_, err := p.db.EnqueueJob(&models.AnalysisJob{
			JobType:    models.JobTypeAnalyze,
			SkillID:    &artifact.SkillID,
			ArtifactID: &artifact.ID,
			Payload: models.JobPayload{
				AnalysisVersion: p.cfg.AnalysisVersion,
				Reason:          "missing_analysis",
			},
		})
		switch {
		case errors.Is(err, db.ErrAlreadyQueued):
			stats.Deduplicated++
		case err != nil:
			log.L().Warn("enqueue analyze job",
				zap.String("artifact_id", artifact.ID), zap.Error(err))
		default:
			stats.AnalyzeEnqueued++
		}
	}
	return nil
}
