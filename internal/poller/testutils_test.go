package poller

import (
	"os"
	"testing"

	"firestige.xyz/pollcore/internal/log"
)

// TestMain runs before all tests in this package
func TestMain(m *testing.M) {
	log.Init(&log.LoggerConfig{
		Level:   "info",
		Pattern: "%time[%caller][%func][%goroutine][%level][%field] - %msg\n",
		Time:    "2006-01-02 15:04:05",
	})

	os.Exit(m.Run())
}
