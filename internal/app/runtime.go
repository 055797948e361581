package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches binaries into a no-op mode under go test.
const TestModeEnv = "CARSALE_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}
