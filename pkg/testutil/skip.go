package testutil

import (
	"os"
	"testing"
)

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// RequireIntegration skips the test unless MOUNTSYNC_INTEGRATION_TESTS is set.
// Integration tests start containers and need a reachable docker daemon.
func RequireIntegration(t *testing.T) {
	t.Helper()
	SkipIfShort(t)
	if os.Getenv("MOUNTSYNC_INTEGRATION_TESTS") == "" {
		t.Skip("skipping integration test (set MOUNTSYNC_INTEGRATION_TESTS=1 to run)")
	}
}
