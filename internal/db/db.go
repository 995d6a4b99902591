// Package db provides a GORM-based database layer for the SkilLens
// pipeline. It uses the pure-Go SQLite driver and owns every table the
// pipeline coordinates through: skills, repo sources, artifacts,
// analyses, and the job queue.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/skillens/skillens/internal/models"
)

// DB wraps the GORM database connection with pipeline-specific operations.
type DB struct {
	*gorm.DB
	path  string
	retry RetryPolicy
}

// RetryPolicy controls job retry scheduling. Backoff grows exponentially
// with the attempt count and is capped.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Backoff returns the delay before the given attempt (1-based) may run
// again: base * 2^(attempt-1), capped.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: 30 * time.Second,
		BackoffCap:  time.Hour,
	}
}

// Config holds database configuration options.
type Config struct {
	Path        string
	Debug       bool
	MaxIdleConn int
	MaxOpenConn int
	Retry       RetryPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
		Retry:       DefaultRetryPolicy(),
	}
}

// New creates a new database connection and runs migrations.
func New(cfg Config) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	// DELETE journal mode for simpler transaction handling; busy_timeout
	// so concurrent workers wait for the single writer instead of failing.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
		TranslateError:         true, // Unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	wrapped := &DB{DB: db, path: cfg.Path, retry: cfg.Retry}

	if err := wrapped.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := wrapped.setupJobIndexes(); err != nil {
		return nil, fmt.Errorf("setup job indexes: %w", err)
	}

	return wrapped, nil
}

// migrate runs GORM auto-migrations for all models.
func (db *DB) migrate() error {
	return db.AutoMigrate(
		&models.Skill{},
		&models.RepoSource{},
		&models.SkillArtifact{},
		&models.SkillAnalysis{},
		&models.AnalysisJob{},
	)
}

// setupJobIndexes creates the partial unique indexes that enforce
// at-most-one open job per target. GORM tags cannot express partial
// indexes, so these are raw SQL. The insert itself fails on duplication;
// there is no check-then-insert race.
func (db *DB) setupJobIndexes() error {
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_open_fetch
			ON analysis_jobs(skill_id)
			WHERE job_type = 'fetch_artifacts' AND status IN ('queued', 'running');`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_open_analyze
			ON analysis_jobs(artifact_id)
			WHERE job_type = 'analyze' AND status IN ('queued', 'running');`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_eligible
			ON analysis_jobs(status, run_after, priority);`,
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction.
// The callback receives a *DB wrapper that uses the transaction.
func (d *DB) Transaction(fc func(tx *DB) error) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		wrappedTx := &DB{DB: tx, path: d.path, retry: d.retry}
		return fc(wrappedTx)
	})
}

// PipelineStats holds aggregate pipeline counters.
type PipelineStats struct {
	TotalSkills    int64
	TotalArtifacts int64
	TotalAnalyses  int64
	JobsByStatus   map[models.JobStatus]int64
	LastUpdated    time.Time
}

// GetStats returns aggregate statistics about the pipeline.
func (db *DB) GetStats() (*PipelineStats, error) {
	stats := &PipelineStats{
		JobsByStatus: make(map[models.JobStatus]int64),
	}

	if err := db.Model(&models.Skill{}).Count(&stats.TotalSkills).Error; err != nil {
		return nil, fmt.Errorf("count skills: %w", err)
	}
	if err := db.Model(&models.SkillArtifact{}).Count(&stats.TotalArtifacts).Error; err != nil {
		return nil, fmt.Errorf("count artifacts: %w", err)
	}
	if err := db.Model(&models.SkillAnalysis{}).Count(&stats.TotalAnalyses).Error; err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}

	type row struct {
		Status models.JobStatus
		Count  int64
	}
	var rows []row
	err := db.Model(&models.AnalysisJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	for _, r := range rows {
		stats.JobsByStatus[r.Status] = r.Count
	}

	stats.LastUpdated = time.Now()
	return stats, nil
}
