// Package guard switches the process into test mode when imported, so
// entrypoints return before touching Postgres, Redis or the network.
package guard

import (
	"os"
	"sync"
)

const envKey = "OUTLETDASH_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(envKey) == "" {
			_ = os.Setenv(envKey, "1")
		}
	})
}
