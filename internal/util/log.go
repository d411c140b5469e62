package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.Success.Println(fmt.Sprintf(format, args...))
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

// Logger tags every line with a component name, e.g. "[host] ...".
type Logger struct {
	prefix string
}

// Scope returns a Logger for the named component.
func Scope(name string) *Logger {
	return &Logger{prefix: "[" + name + "] "}
}

// With returns a Logger nested under l, e.g. "[host] [conn 3] ...".
func (l *Logger) With(format string, args ...interface{}) *Logger {
	return &Logger{prefix: l.prefix + "[" + fmt.Sprintf(format, args...) + "] "}
}

func (l *Logger) Debug(format string, args ...interface{}) { LogDebug(l.prefix+format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { LogInfo(l.prefix+format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { LogWarning(l.prefix+format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { LogError(l.prefix+format, args...) }
