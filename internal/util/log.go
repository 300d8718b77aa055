// Package util provides logging and traffic statistics shared by all packages.
package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm prefixed printers.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLogLevel maps a config level name onto the pterm logger. "silent"
// disables output entirely.
func SetLogLevel(level string) error {
	switch level {
	case "debug", "verbose":
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	case "info", "":
		pterm.DefaultLogger.Level = pterm.LogLevelInfo
	case "warn", "warning":
		pterm.DefaultLogger.Level = pterm.LogLevelWarn
	case "error":
		pterm.DefaultLogger.Level = pterm.LogLevelError
	case "silent":
		pterm.DefaultLogger.Level = pterm.LogLevelDisabled
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// SetLogOutput redirects the logger, e.g. to io.Discard in tests.
func SetLogOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}

// Logger prefixes every line with a peer tag, e.g. "[Host] data channel open".
type Logger struct {
	prefix string
}

// NewLogger returns a Logger tagging lines with "[tag]".
func NewLogger(tag string) Logger {
	return Logger{prefix: "[" + tag + "] "}
}

func (l Logger) Debug(format string, args ...interface{}) { LogDebug(l.prefix+format, args...) }
func (l Logger) Info(format string, args ...interface{})  { LogInfo(l.prefix+format, args...) }
func (l Logger) Warn(format string, args ...interface{})  { LogWarning(l.prefix+format, args...) }
func (l Logger) Error(format string, args ...interface{}) { LogError(l.prefix+format, args...) }
