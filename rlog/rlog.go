// Package rlog is the package-level structured logger that tasksched and
// cmd/rlibdemo call through, mirroring eventloop/logging.go's
// global-logger pattern (here SetLogger; the default logger writes
// console-formatted entries to stderr) but backed by a real third-party stack —
// github.com/joeycumines/logiface fronting github.com/rs/zerolog via
// github.com/joeycumines/izerolog — instead of a hand-rolled writer.
package rlog

import (
	"os"
	"sync"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *logiface.Logger[*izerolog.Event] {
	z := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return logiface.New[*izerolog.Event](izerolog.WithZerolog(z))
}

// SetLogger replaces the package-level logger. Tests and embedders that
// want a custom sink (buffer, silent, json) call this once at startup.
func SetLogger(l *logiface.Logger[*izerolog.Event]) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Get returns the current package-level logger.
func Get() *logiface.Logger[*izerolog.Event] {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug starts a debug-level log entry.
func Debug() *logiface.Builder[*izerolog.Event] { return Get().Debug() }

// Info starts an informational-level log entry.
func Info() *logiface.Builder[*izerolog.Event] { return Get().Info() }

// Warning starts a warning-level log entry.
func Warning() *logiface.Builder[*izerolog.Event] { return Get().Warning() }

// Err starts an error-level log entry.
func Err() *logiface.Builder[*izerolog.Event] { return Get().Err() }
