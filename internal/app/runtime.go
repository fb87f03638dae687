package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv set to "1" keeps the binaries from dialing Postgres, Redis or
// the queue broker. Tests set it via internal/testing/guard.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether startup side effects should be skipped. The
// environment is read on first use.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&on)
	return on
}
