package corosched

import (
	"sync"

	"github.com/joeycumines/logiface"
)

// Package-level logger configuration. A package-level default is appropriate
// here because logging is an infrastructure cross-cutting concern, and
// scheduler instances typically share logging semantics; per-instance
// configuration remains available via WithLogger.

var globalLogger struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger sets the package-level default logger, used by schedulers not
// configured with WithLogger. A nil logger (the initial value) disables
// logging: every log site in this package tolerates a nil logger, per the
// logiface fluent API contract.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// defaultLogger safely retrieves the package-level default logger.
func defaultLogger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}
