package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv set to "1" makes the entrypoints return before dialing any
// dependency.
const TestModeEnv = "OUTLETDASH_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the application should skip runtime side
// effects. The environment is read once and cached.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new value.
func RefreshTestMode() bool {
	v := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&v)
	return v
}
