// Package logging configures the plain log package from NSM_LOG_LEVEL and
// NSM_LOG_STYLE, gating log.Printf calls behind a coarse three-level Level
// rather than a leveled logging library.
package logging

import (
	"log"
	"os"
	"strings"
)

// Level is a coarse verbosity gate: a debug/info two-state shape plus a
// third "warn only" tier for NSM_LOG_LEVEL=warn.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
)

// FromEnv reads NSM_LOG_LEVEL ("warn", "info", "debug"; default "info")
// and NSM_LOG_STYLE ("plain", "prefixed"; default "prefixed") and returns a
// configured *log.Logger plus the resolved Level, which callers use to
// gate their own Debug-only Printf calls.
func FromEnv() (*log.Logger, Level) {
	level := LevelInfo
	switch strings.ToLower(os.Getenv("NSM_LOG_LEVEL")) {
	case "warn", "warning":
		level = LevelWarn
	case "debug":
		level = LevelDebug
	}

	flags := log.LstdFlags
	prefix := "nsm: "
	if strings.EqualFold(os.Getenv("NSM_LOG_STYLE"), "plain") {
		flags = 0
		prefix = ""
	}

	return log.New(os.Stderr, prefix, flags), level
}

// Logger wraps *log.Logger with the resolved Level so call sites can gate
// verbose output without threading the Level separately.
type Logger struct {
	*log.Logger
	Level Level
}

// New builds a Logger from the environment.
func New() *Logger {
	l, level := FromEnv()
	return &Logger{Logger: l, Level: level}
}

// Debugf logs only at LevelDebug.
func (l *Logger) Debugf(format string, args ...any) {
	if l.Level >= LevelDebug {
		l.Printf(format, args...)
	}
}

// Infof logs at LevelInfo and LevelDebug.
func (l *Logger) Infof(format string, args ...any) {
	if l.Level >= LevelInfo {
		l.Printf(format, args...)
	}
}
