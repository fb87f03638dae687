// Package guard switches the process into test mode on import so binaries
// exercised from tests return before connecting to Postgres and Redis.
package guard

import "os"

// Must match app.TestModeEnv.
const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
}
