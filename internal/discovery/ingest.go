package discovery

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skillens/skillens/internal/db"
	"github.com/skillens/skillens/internal/fetcher"
	"github.com/skillens/skillens/internal/hash"
	"github.com/skillens/skillens/internal/log"
	"github.com/skillens/skillens/internal/models"
)

// IngestStats counts what one ingest run did.
type IngestStats struct {
	Upserted     int
	FetchQueued  int
	Deduplicated int
	Failed       int
}

// Ingestor writes parsed catalog records into the content store and
// queues fetch work for them.
type Ingestor struct {
	db           *db.DB
	parseVersion string
}

// NewIngestor creates an ingestor.
func NewIngestor(database *db.DB, parseVersion string) *Ingestor {
	return &Ingestor{db: database, parseVersion: parseVersion}
}

// IngestPage parses one skill page and stores the result.
func (ing *Ingestor) IngestPage(pageURL, html string, stats *IngestStats) (*models.Skill, error) {
	record, err := ParsePage(pageURL, html, time.Now())
	if err != nil {
		return nil, err
	}
	return ing.IngestRecord(record, stats)
}

// IngestRecord upserts a skill row, keeps its repo source registered,
// and enqueues a fetch job. Re-ingesting the same identity updates
// metrics and timestamps only.
func (ing *Ingestor) IngestRecord(record *PageRecord, stats *IngestStats) (*models.Skill, error) {
	now := time.Now()
	skill := &models.Skill{
		Source:         record.Source,
		Owner:          record.Owner,
		Repo:           record.Repo,
		SkillSlug:      record.SkillSlug,
		Title:          record.SkillSlug,
		PageURL:        record.PageURL,
		RepositoryURL:  record.RepositoryURL,
		InstallCommand: record.InstallCommand,
		WeeklyInstalls: record.WeeklyInstalls,
		SkillContent:   record.SkillMD,
		LastSeenAt:     now,
		ScrapedAt:      &now,
	}
	skill.ID = hash.TruncatedSHA256(skill.IdentityKey())
	if record.FirstSeen != nil {
		skill.FirstSeenAt = *record.FirstSeen
	} else {
		skill.FirstSeenAt = now
	}

	if err := ing.db.UpsertSkill(skill); err != nil {
		stats.Failed++
		return nil, fmt.Errorf("upsert skill %s: %w", skill.IdentityKey(), err)
	}
	stats.Upserted++

	if skill.RepositoryURL != "" {
		if owner, repo, err := fetcher.ParseRepositoryURL(skill.RepositoryURL); err == nil {
			_, err := ing.db.EnsureRepoSource(&models.RepoSource{
				RepositoryURL: skill.RepositoryURL,
				Provider:      "github",
				Owner:         owner,
				Repo:          repo,
			})
			if err != nil {
				log.L().Warn("ensure repo source",
					zap.String("repository_url", skill.RepositoryURL), zap.Error(err))
			}
		}
	}

	_, err := ing.db.EnqueueJob(&models.AnalysisJob{
		JobType: models.JobTypeFetchArtifacts,
		SkillID: &skill.ID,
		Payload: models.JobPayload{
			ParseVersion: ing.parseVersion,
			Reason:       "discovered",
		},
	})
	switch {
	case errors.Is(err, db.ErrAlreadyQueued):
		stats.Deduplicated++
	case err != nil:
		log.L().Warn("enqueue fetch job",
			zap.String("skill_id", skill.ID), zap.Error(err))
	default:
		stats.FetchQueued++
	}

	return skill, nil
}
