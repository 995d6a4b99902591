package analysis

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DeclaredDependency is one dependency extracted from a manifest file.
type DeclaredDependency struct {
	Ecosystem  string `json:"ecosystem"`
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
	Pinned     bool   `json:"pinned"`
	SourceFile string `json:"source_file"`
}

// DependencyReport summarizes declared dependencies across an
// artifact's manifest files.
type DependencyReport struct {
	Dependencies []DeclaredDependency `json:"dependencies"`
	Total        int                  `json:"total"`
	PinnedCount  int                  `json:"pinned_count"`
	PinnedRatio  float64              `json:"pinned_ratio"`
}

// AnalyzeDependencies extracts dependency declarations from package.json
// and requirements files and classifies each as pinned or floating.
func AnalyzeDependencies(files []ScannedFile) *DependencyReport {
	report := &DependencyReport{Dependencies: []DeclaredDependency{}}

	for _, file := range files {
		pathLower := strings.ToLower(file.Path)
		switch {
		case strings.HasSuffix(pathLower, "package.json"):
			report.Dependencies = append(report.Dependencies, npmDependencies(file)...)
		case strings.Contains(pathLower, "requirements") && strings.HasSuffix(pathLower, ".txt"):
			report.Dependencies = append(report.Dependencies, pythonDependencies(file)...)
		}
	}

	sort.Slice(report.Dependencies, func(i, j int) bool {
		a, b := report.Dependencies[i], report.Dependencies[j]
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.Name < b.Name
	})

	report.Total = len(report.Dependencies)
	for _, dep := range report.Dependencies {
		if dep.Pinned {
			report.PinnedCount++
		}
	}
	if report.Total > 0 {
		report.PinnedRatio = float64(report.PinnedCount) / float64(report.Total)
	}
	return report
}

func npmDependencies(file ScannedFile) []DeclaredDependency {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(file.Text), &payload); err != nil {
		return nil
	}

	var result []DeclaredDependency
	for _, block := range []string{"dependencies", "devDependencies", "optionalDependencies"} {
		raw, ok := payload[block]
		if !ok {
			continue
		}
		var deps map[string]string
		if err := json.Unmarshal(raw, &deps); err != nil {
			continue
		}
		for name, constraint := range deps {
			result = append(result, DeclaredDependency{
				Ecosystem:  "npm",
				Name:       name,
				Constraint: constraint,
				Pinned:     isPinnedSemver(constraint),
				SourceFile: file.Path,
			})
		}
	}
	return result
}

// isPinnedSemver reports whether a constraint resolves to exactly one
// version.
func isPinnedSemver(constraint string) bool {
	trimmed := strings.TrimSpace(constraint)
	if trimmed == "" || trimmed == "*" || trimmed == "latest" {
		return false
	}
	if strings.HasPrefix(trimmed, "=") {
		trimmed = strings.TrimLeft(trimmed, "= ")
	}
	// Range operators and wildcards always float.
	if strings.ContainsAny(trimmed, "^~><*x|") || strings.Contains(trimmed, " - ") {
		return false
	}
	_, err := semver.StrictNewVersion(trimmed)
	return err == nil
}

func pythonDependencies(file ScannedFile) []DeclaredDependency {
	var result []DeclaredDependency
	for _, line := range strings.Split(file.Text, "\n") {
		clean := strings.TrimSpace(line)
		if clean == "" || strings.HasPrefix(clean, "#") || strings.HasPrefix(clean, "-") {
			continue
		}
		if idx := strings.Index(clean, " #"); idx >= 0 {
			clean = strings.TrimSpace(clean[:idx])
		}

		name, constraint := clean, ""
		pinned := false
		if idx := strings.Index(clean, "=="); idx >= 0 {
			name = strings.TrimSpace(clean[:idx])
			constraint = strings.TrimSpace(clean[idx:])
			pinned = true
		} else {
			for _, op := range []string{">=", "<=", "~=", ">", "<", "!="} {
				if idx := strings.Index(clean, op); idx >= 0 {
					name = strings.TrimSpace(clean[:idx])
					constraint = strings.TrimSpace(clean[idx:])
					break
				}
			}
		}
		if name == "" || strings.HasPrefix(name, "git+") {
			continue
		}
		result = append(result, DeclaredDependency{
			Ecosystem:  "pypi",
			Name:       name,
			Constraint: constraint,
			Pinned:     pinned,
			SourceFile: file.Path,
		})
	}
	return result
}
