package quizrunner

import (
	"log"
	"sync/atomic"
)

// Global verbose flag
var verboseMode atomic.Bool

// SetVerbose turns transition tracing on or off
func SetVerbose(verbose bool) {
	verboseMode.Store(verbose)
}

// Verbose reports whether tracing is enabled
func Verbose() bool {
	return verboseMode.Load()
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	if verboseMode.Load() {
		log.Printf(format, v...)
	}
}
