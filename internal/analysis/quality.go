package analysis

import (
	"regexp"
	"strings"
)

// QualityReport holds deterministic documentation and packaging
// completeness signals.
type QualityReport struct {
	HasName         bool    `json:"has_name"`
	HasDescription  bool    `json:"has_description"`
	HasVersion      bool    `json:"has_version"`
	HasLicense      bool    `json:"has_license"`
	HasUsageSection bool    `json:"has_usage_section"`
	HasExamples     bool    `json:"has_examples"`
	DocWordCount    int     `json:"doc_word_count"`
	FileCount       int     `json:"file_count"`
	Score           float64 `json:"score"`
}

// QualityMeta is the frontmatter metadata fed into the quality
// analyzer.
type QualityMeta struct {
	Name        string
	Description string
	Version     string
	License     string
}

var (
	usageHeadingRe   = regexp.MustCompile(`(?im)^#{1,4}\s*(usage|getting started|how to use)`)
	exampleHeadingRe = regexp.MustCompile(`(?im)^#{1,4}\s*example`)
	codeFenceRe      = regexp.MustCompile("(?s)```.+?```")
)

// AnalyzeQuality scores documentation completeness for a skill. The
// score rewards described, versioned, documented skills; it never
// affects the security risk score.
func AnalyzeQuality(meta QualityMeta, skillMD string, fileCount int) *QualityReport {
	report := &QualityReport{
		HasName:         meta.Name != "",
		HasDescription:  meta.Description != "",
		HasVersion:      meta.Version != "",
		HasLicense:      meta.License != "",
		HasUsageSection: usageHeadingRe.MatchString(skillMD),
		HasExamples:     exampleHeadingRe.MatchString(skillMD) || codeFenceRe.MatchString(skillMD),
		DocWordCount:    len(strings.Fields(skillMD)),
		FileCount:       fileCount,
	}

	score := 0.0
	if report.HasName {
		score += 15
	}
	if report.HasDescription {
		score += 20
	}
	if report.HasVersion {
		score += 10
	}
	if report.HasLicense {
		score += 10
	}
	if report.HasUsageSection {
		score += 15
	}
	if report.HasExamples {
		score += 15
	}
	switch {
	case report.DocWordCount >= 300:
		score += 15
	case report.DocWordCount >= 100:
		score += 10
	case report.DocWordCount >= 30:
		score += 5
	}
	if score > 100 {
		score = 100
	}
	report.Score = score
	return report
}
