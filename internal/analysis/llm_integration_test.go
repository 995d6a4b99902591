package analysis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillens/skillens/internal/testutil"
)

// Exercises the real OpenAI validation path end to end.
func TestValidateAgainstOpenAI(t *testing.T) {
	testutil.SkipAITests(t)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	validator := NewValidator(apiKey, "")
	require.NotNil(t, validator)

	findings := []Finding{criticalFinding("high")}
	snippets := BuildContextSnippets([]ScannedFile{
		{Path: "skill/run.py", Text: "user_input = input()\neval(user_input)\n"},
	}, findings)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := validator.Validate(ctx, findings, snippets)
	require.NoError(t, err)
	require.NotEmpty(t, result.SecuritySummary)
	require.NotEmpty(t, result.ValidatedFindings)
	require.Equal(t, findings[0].ID, result.ValidatedFindings[0].FindingID)
}
