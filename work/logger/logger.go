// Package logger is a small leveled wrapper over the stdlib log package.
// The level can be changed at runtime, which the reload path uses to pick
// up logLevel edits without a restart.
package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// current holds the active level; atomic so log calls never contend with
// a concurrent reload.
var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// ParseLevel maps a config string to a Level. Unknown strings fall back
// to INFO rather than failing startup.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLogLevel changes the active level.
func SetLogLevel(s string) {
	current.Store(int32(ParseLevel(s)))
}

func emit(lvl Level, format string, v ...any) {
	if int32(lvl) < current.Load() {
		return
	}
	log.Printf("["+levelNames[lvl]+"] "+format, v...)
}

func Debug(format string, v ...any) { emit(LevelDebug, format, v...) }
func Info(format string, v ...any)  { emit(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { emit(LevelWarn, format, v...) }
func Error(format string, v ...any) { emit(LevelError, format, v...) }
