// Package ui provides terminal UI components and styling for ragserve.
package ui

import (
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger configures the process-wide charm logger. Logs go to stderr
// so styled results and JSON output on stdout stay parseable.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug switches between debug and info log levels.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
