package analysis

import (
	"fmt"
	"strings"
	"time"
)

// UserExplanation is the plain-language summary attached to a security
// result for catalog display.
type UserExplanation struct {
	Headline           string        `json:"headline"`
	Summary            string        `json:"summary"`
	TopConcerns        []string      `json:"top_concerns"`
	RecommendedActions []string      `json:"recommended_actions"`
	SafetyChecks       []SafetyCheck `json:"safety_checks"`
	SafetyStatements   []string      `json:"safety_statements"`
}

// SecurityData is the full security result blob stored on the analysis
// row.
type SecurityData struct {
	Findings          []Finding          `json:"findings"`
	ValidatedFindings []ValidatedFinding `json:"validated_findings"`
	SecuritySummary   string             `json:"security_summary,omitempty"`
	UserExplanation   UserExplanation    `json:"user_explanation"`
	RiskScore         int                `json:"risk_score"`
	TrustBadge        string             `json:"trust_badge"`
	Capabilities      Capabilities       `json:"capabilities"`
	LLMUsed           bool               `json:"llm_used"`
	LLMModel          string             `json:"llm_model,omitempty"`
	AnalyzedAt        time.Time          `json:"analyzed_at"`
}

var defaultRecommendedActions = []string{
	"Inspect shell and subprocess calls for user-controlled inputs.",
	"Review network requests and sensitive file operations before use.",
	"Avoid installing skills that require broad system access unless necessary.",
}

// buildUserExplanation assembles the catalog-facing narrative from scan
// results and any validated findings.
func buildUserExplanation(scan *ScanResult, validated []ValidatedFinding, securitySummary string, behavior *BehaviorReport) UserExplanation {
	var highOrCritical []Finding
	for _, f := range scan.Findings {
		if f.Severity == SeverityHigh || f.Severity == SeverityCritical {
			highOrCritical = append(highOrCritical, f)
		}
	}

	var summary string
	switch {
	case securitySummary != "":
		summary = securitySummary
	case len(scan.Findings) == 0:
		summary = "No risky execution or exfiltration patterns were detected in scanned text artifacts."
	case len(highOrCritical) == 0:
		summary = "Only low-to-medium risk patterns were detected. Review findings, but no immediate high-risk behavior was found in this scan."
	default:
		summary = pluralizedRiskSummary(len(highOrCritical))
	}

	var topConcerns []string
	for _, f := range highOrCritical {
		topConcerns = append(topConcerns, f.Title)
		if len(topConcerns) == 3 {
			break
		}
	}
	if len(topConcerns) == 0 {
		for _, f := range scan.Findings {
			topConcerns = append(topConcerns, f.Title)
			if len(topConcerns) == 3 {
				break
			}
		}
	}

	var actions []string
	for i, v := range validated {
		if i >= 4 {
			break
		}
		for _, bullet := range v.Mitigation {
			if b := strings.TrimSpace(bullet); b != "" {
				actions = append(actions, b)
			}
		}
	}
	if len(actions) == 0 {
		actions = append(actions, defaultRecommendedActions...)
	}
	if len(actions) > 4 {
		actions = actions[:4]
	}

	return UserExplanation{
		Headline:           scan.TrustBadge,
		Summary:            summary,
		TopConcerns:        topConcerns,
		RecommendedActions: actions,
		SafetyChecks:       behavior.SafetyChecks,
		SafetyStatements:   behavior.SafetyStatements,
	}
}

func pluralizedRiskSummary(count int) string {
	return fmt.Sprintf("%d high-risk pattern(s) detected. Review command execution, file deletion, or network-related findings before installing.", count)
}
