package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeQualityComplete(t *testing.T) {
	skillMD := "# Deploy Helper\n\n## Usage\n\nRun it.\n\n## Examples\n\n```sh\ndeploy\n```\n\n" +
		strings.Repeat("word ", 300)
	meta := QualityMeta{
		Name:        "deploy-helper",
		Description: "Deploys things.",
		Version:     "1.0.0",
		License:     "MIT",
	}

	report := AnalyzeQuality(meta, skillMD, 3)
	require.True(t, report.HasName)
	require.True(t, report.HasDescription)
	require.True(t, report.HasVersion)
	require.True(t, report.HasLicense)
	require.True(t, report.HasUsageSection)
	require.True(t, report.HasExamples)
	require.Equal(t, 3, report.FileCount)
	require.Equal(t, 100.0, report.Score)
}

func TestAnalyzeQualityBare(t *testing.T) {
	report := AnalyzeQuality(QualityMeta{}, "", 1)
	require.Zero(t, report.Score)
	require.Zero(t, report.DocWordCount)
	require.False(t, report.HasUsageSection)
	require.False(t, report.HasExamples)
}

func TestAnalyzeQualityWordCountTiers(t *testing.T) {
	short := strings.Repeat("word ", 30)
	medium := strings.Repeat("word ", 100)
	long := strings.Repeat("word ", 300)

	require.Equal(t, 5.0, AnalyzeQuality(QualityMeta{}, short, 1).Score)
	require.Equal(t, 10.0, AnalyzeQuality(QualityMeta{}, medium, 1).Score)
	require.Equal(t, 15.0, AnalyzeQuality(QualityMeta{}, long, 1).Score)
}

func TestAnalyzeQualityCodeFenceCountsAsExample(t *testing.T) {
	report := AnalyzeQuality(QualityMeta{}, "Intro.\n\n```python\nprint('hi')\n```\n", 1)
	require.True(t, report.HasExamples)
}

func TestAnalyzeBehaviorClean(t *testing.T) {
	report := AnalyzeBehavior(Capabilities{})

	require.Equal(t, "general", report.Category)
	require.Len(t, report.SafetyChecks, 5)
	require.Len(t, report.SafetyStatements, 5)
	for _, check := range report.SafetyChecks {
		require.True(t, check.Safe, "check %s", check.Key)
	}
	require.Contains(t, report.SafetyStatements, "No shell execution behavior detected.")
}

func TestAnalyzeBehaviorRisky(t *testing.T) {
	report := AnalyzeBehavior(Capabilities{ShellExec: true, Network: true})

	require.Equal(t, "system_automation", report.Category, "shell wins the category")
	require.Contains(t, report.SafetyStatements,
		"Shell execution behavior detected; review commands and input handling.")
	require.Contains(t, report.SafetyStatements,
		"Outbound network behavior detected; verify destination allowlist.")

	byKey := map[string]SafetyCheck{}
	for _, check := range report.SafetyChecks {
		byKey[check.Key] = check
	}
	require.False(t, byKey["shell_exec"].Safe)
	require.False(t, byKey["network"].Safe)
	require.True(t, byKey["db_access"].Safe)
}

func TestBehaviorCategoryPrecedence(t *testing.T) {
	require.Equal(t, "network_integration", behaviorCategory(Capabilities{Network: true}))
	require.Equal(t, "file_management", behaviorCategory(Capabilities{FileWrite: true}))
	require.Equal(t, "data_access", behaviorCategory(Capabilities{DBAccess: true}))
}
