package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillens/skillens/internal/models"
)

// UpsertSkill creates a skill or, on re-scrape of an existing identity,
// updates only the catalog metadata, metrics, and timestamps. Identity
// fields and first_seen_at never change after creation.
func (db *DB) UpsertSkill(skill *models.Skill) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "page_url", "repository_url",
			"install_command", "weekly_installs", "skill_content",
			"last_seen_at", "scraped_at", "updated_at",
		}),
	}).Create(skill).Error
}

// GetSkill retrieves a skill by ID. Returns nil when not found.
func (db *DB) GetSkill(id string) (*models.Skill, error) {
	var skill models.Skill
	err := db.First(&skill, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &skill, nil
}

// ListSkills returns skills in stable identity order for batch sweeps.
func (db *DB) ListSkills(limit, offset int) ([]models.Skill, error) {
	var skills []models.Skill
	err := db.Order("owner, repo, skill_slug").
		Limit(limit).Offset(offset).
		Find(&skills).Error
	return skills, err
}

// ListSkillsSeenSince returns skills seen or scraped after the cutoff.
func (db *DB) ListSkillsSeenSince(since time.Time, limit int) ([]models.Skill, error) {
	var skills []models.Skill
	err := db.Where("last_seen_at >= ? OR scraped_at >= ?", since, since).
		Order("last_seen_at DESC").
		Limit(limit).
		Find(&skills).Error
	return skills, err
}

// CountSkills returns the number of catalog skills.
func (db *DB) CountSkills() (int64, error) {
	var count int64
	err := db.Model(&models.Skill{}).Count(&count).Error
	return count, err
}
