// Package models defines the core data structures for the SkilLens pipeline.
package models

import (
	"fmt"
	"time"
)

// Skill represents one discovered (owner, repo, skill_slug) entry from a
// catalog source. Discovery creates it; re-scrapes only touch metrics and
// timestamps. Rows are never deleted while artifacts reference them.
type Skill struct {
	ID string `gorm:"primaryKey;size:64" json:"id"` // Truncated SHA256 of source://owner/repo/slug

	// Identity (unique per catalog source)
	Source    string `gorm:"size:50;uniqueIndex:idx_skill_identity" json:"source"`
	Owner     string `gorm:"size:100;index;uniqueIndex:idx_skill_identity" json:"owner"`
	Repo      string `gorm:"size:100;index;uniqueIndex:idx_skill_identity" json:"repo"`
	SkillSlug string `gorm:"size:100;uniqueIndex:idx_skill_identity" json:"skill_slug"`

	// Catalog page metadata
	Title          string `gorm:"size:255" json:"title"`
	Description    string `gorm:"size:1000" json:"description"`
	PageURL        string `gorm:"size:500" json:"page_url"`
	RepositoryURL  string `gorm:"size:500;index" json:"repository_url"`
	InstallCommand string `gorm:"size:500" json:"install_command"`

	// Popularity metrics (mutated on re-scrape)
	WeeklyInstalls int `gorm:"default:0" json:"weekly_installs"`

	// Best-known SKILL.md content from the catalog page, if any
	SkillContent string `gorm:"type:text" json:"skill_content"`

	// Owned artifact history (cascade-deleted with the skill)
	Artifacts []SkillArtifact `gorm:"foreignKey:SkillID;constraint:OnDelete:CASCADE" json:"-"`

	// Timestamps
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	ScrapedAt   *time.Time `json:"scraped_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Skill) TableName() string {
	return "skills"
}

// IdentityKey returns the canonical identity string hashed into the ID.
func (s *Skill) IdentityKey() string {
	return fmt.Sprintf("%s://%s/%s/%s", s.Source, s.Owner, s.Repo, s.SkillSlug)
}

// FullName returns owner/repo.
func (s *Skill) FullName() string {
	return s.Owner + "/" + s.Repo
}
