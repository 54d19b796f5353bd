// Package testing switches the application into test mode when imported by a
// test binary.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if os.Getenv("AUDITVIEW_TEST_MODE") == "" {
			_ = os.Setenv("AUDITVIEW_TEST_MODE", "1")
		}
	})
}

func init() {
	ensureTestMode()
}
