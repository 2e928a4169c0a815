// Package logx is the project's single entry point for structured logging.
// Every component obtains its logger via New rather than importing
// github.com/luxfi/log directly, so the logging backend can be swapped
// (e.g. to a no-op logger in tests) in one place.
package logx

import (
	"github.com/luxfi/log"
)

// Component names used across the codebase; kept as constants so log
// filtering by component is typo-proof.
const (
	Scheduler  = "scheduler"
	Buffer     = "buffer"
	Controller = "controller"
	Logging    = "logging"
	Worker     = "worker"
	Control    = "control"
	Config     = "config"
)

var root log.Logger = log.NewNoOpLogger()

// Init installs the process-wide root logger used by every subsequent
// call to New. cmd/master and cmd/worker call this once at startup;
// package tests leave the no-op default in place.
func Init(name string) {
	root = log.New("app", name)
}

// New returns a logger scoped to the given component name.
func New(component string) log.Logger {
	return root.With("component", component)
}

// Disable switches all logging to a no-op logger; used by package tests
// that want quiet output.
func Disable() {
	root = log.NewNoOpLogger()
}
