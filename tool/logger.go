package tool

import (
	"strings"

	"github.com/charmbracelet/log"
)

var DefaultLogger = log.Default()

func InitLogger() {
	DefaultLogger.SetTimeFormat("2006-01-02 15:04:05")
	DefaultLogger.SetReportCaller(true)
}

// SetLogMode maps the --log flag to a level: dev, prod or none. Empty means dev.
func SetLogMode(mode string) {
	switch strings.ToLower(mode) {
	case "", "dev":
		DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		DefaultLogger.SetLevel(log.FatalLevel)
	default:
		DefaultLogger.Warnf("Unknown log mode %q, using debug level", mode)
		DefaultLogger.SetLevel(log.DebugLevel)
	}
}
