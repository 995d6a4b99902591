package config

import (
	"os"
	"path/filepath"
)

// Paths contains commonly used file paths.
type Paths struct {
	Database     string // Main SQLite database
	Config       string // Config file
	Repositories string // Cloned repositories directory
	Artifacts    string // Fetched artifact content directory
}

// GetPaths returns all commonly used paths based on config.
func GetPaths(cfg *Config) Paths {
	return Paths{
		Database:     filepath.Join(cfg.BaseDir, "skillens.db"),
		Config:       filepath.Join(cfg.BaseDir, "config.yaml"),
		Repositories: filepath.Join(cfg.BaseDir, "repositories"),
		Artifacts:    filepath.Join(cfg.BaseDir, "artifacts"),
	}
}

// DefaultBaseDir returns the default base directory (~/.skillens).
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skillens"
	}
	return filepath.Join(home, ".skillens")
}
