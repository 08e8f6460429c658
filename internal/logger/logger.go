package logger

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Global logger instance
	globalLogger *logrus.Logger
)

// Initialize sets up the global logger with the specified configuration
func Initialize() *logrus.Logger {
	if globalLogger != nil {
		return globalLogger
	}

	logger := logrus.New()

	// Configure logger based on environment
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))
	switch logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// Configure log format
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	if logFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			ForceColors:      true,
			CallerPrettyfier: callerPrettyfier,
		})
	} else {
		// Default to JSON format
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	}

	// Enable reporting of the caller
	logger.SetReportCaller(true)

	// Ensure logs go to stdout
	logger.SetOutput(os.Stdout)

	globalLogger = logger
	return logger
}

// Get returns the global logger instance, initializing it if necessary
func Get() *logrus.Logger {
	if globalLogger == nil {
		return Initialize()
	}
	return globalLogger
}

// WithComponent creates a new entry with the component name
func WithComponent(component string) *logrus.Entry {
	return Get().WithField("component", component)
}

// WithTransaction creates a new entry scoped to one team's switch
// transaction so every log line it emits is correlated
func WithTransaction(component, team, txID string) *logrus.Entry {
	return Get().WithFields(logrus.Fields{
		"component":   component,
		"team":        team,
		"transaction": txID,
	})
}

// Helper function for formatting caller information
func callerPrettyfier(f *runtime.Frame) (string, string) {
	filename := path.Base(f.File)
	return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
}
