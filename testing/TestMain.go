// Package testing prepares the process environment for package tests. Import it
// for side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CONTACTS_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", "test-secret-with-enough-bytes-0123456789")
		}
		if os.Getenv("APP_BASE_URL") == "" {
			_ = os.Setenv("APP_BASE_URL", "http://contacts.test")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
