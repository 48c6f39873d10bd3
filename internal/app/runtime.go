package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "CASHPLAN_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode parses CASHPLAN_TEST_MODE, accepting any boolean form
// strconv understands ("1", "true", "TRUE", ...).
func detectTestMode() {
	v, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(v)
}

// InTestMode reports whether the application should skip runtime side effects
// such as opening listeners or dialing backends.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changes.
func RefreshTestMode() {
	detectTestMode()
}
