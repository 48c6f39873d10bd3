// Package guard flips the runtime into test mode when imported, keeping
// binaries under test from opening sockets or touching live backends.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CASHPLAN_TEST_MODE") == "" {
			_ = os.Setenv("CASHPLAN_TEST_MODE", "1")
		}
	})
}
