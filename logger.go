package veccache

import (
	log "log/slog"
	"os"
)

var logLevel = new(log.LevelVar)

// ConfigureLogging installs a TextHandler as the process default logger and
// sets its level from the VECCACHE_LOG_LEVEL environment variable
// (DEBUG/WARN/ERROR; defaults to INFO). Call this once at process startup;
// the cache itself never calls it implicitly so embedding applications keep
// control of their own logging setup.
func ConfigureLogging() {
	logLevel.Set(log.LevelInfo)

	switch os.Getenv("VECCACHE_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(log.LevelDebug)
	case "WARN":
		logLevel.Set(log.LevelWarn)
	case "ERROR":
		logLevel.Set(log.LevelError)
	}

	handler := log.NewTextHandler(os.Stdout, &log.HandlerOptions{Level: logLevel})
	log.SetDefault(log.New(handler))
}

// SetLogLevel overrides the level set by ConfigureLogging.
func SetLogLevel(level log.Level) {
	logLevel.Set(level)
}
