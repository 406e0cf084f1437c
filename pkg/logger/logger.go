package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/artcritique/brushup/pkg/config"
)

var logger *log.Logger
var logFile *os.File

// Init initializes the logger
func Init(verbose bool) {
	logLevel, err := log.ParseLevel(config.GetString("log.level"))
	if err != nil {
		logLevel = log.InfoLevel
	}
	if verbose {
		logLevel = log.DebugLevel
	}

	var out io.Writer = os.Stderr
	if path := config.GetString("log.file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err == nil {
			logFile = f
			out = f
		}
		// If we can't create the log file, just log to stderr
	}

	logger = log.NewWithOptions(out, log.Options{
		Level:           logLevel,
		ReportTimestamp: true,
		Prefix:          "brushup",
	})
}

// InitWriter points the logger at w, for tests and the dev server.
func InitWriter(w io.Writer, level log.Level) {
	logger = log.NewWithOptions(w, log.Options{Level: level, ReportTimestamp: true})
}

// Close releases the log file, if any
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(msg string, args ...interface{}) {
	if logger != nil {
		logger.Fatal(msg, args...)
	} else {
		os.Exit(1)
	}
}

// GetLogger returns the logger instance, or a discarding logger before Init
func GetLogger() *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}

// With returns a child logger carrying the given key/value pairs
func With(args ...interface{}) *log.Logger {
	return GetLogger().With(args...)
}
