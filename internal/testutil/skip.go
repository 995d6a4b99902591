// Package testutil provides testing utilities.
package testutil

import (
	"os"
	"testing"
)

// SkipAITests skips the test if RUN_AI_TESTS is not set.
// Use this for tests that require an OpenAI API key.
//
// Run AI tests with: RUN_AI_TESTS=1 go test ./...
func SkipAITests(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_AI_TESTS") == "" {
		t.Skip("Skipping AI test (set RUN_AI_TESTS=1 to run)")
	}
}

// SkipNetworkTests skips the test if RUN_NETWORK_TESTS is not set.
// Use this for tests that reach GitHub or catalog sites.
//
// Run network tests with: RUN_NETWORK_TESTS=1 go test ./...
func SkipNetworkTests(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_NETWORK_TESTS") == "" {
		t.Skip("Skipping network test (set RUN_NETWORK_TESTS=1 to run)")
	}
}
