// errors.go - Structured error taxonomy for the NDS core

/*
errors.go - error taxonomy

The core never panics for anything a guest program, a malformed
cartridge, or a bad configuration can trigger. Three categories cover
everything in spec section 7:

  - ConfigError: a problem with the host-supplied configuration or
    system files, detected once at construction time.
  - ProtocolError: a malformed cartridge/backup protocol sequence,
    detected synchronously at the offending register write and
    returned to the caller.
  - StateError: an internal inconsistency (double swap-buffers, a
    nonsensical cp15 write) that is logged and absorbed at runtime;
    RunUntilVBlank does not fail because of one.

Component logging uses the package-level trace() helper rather than a
third-party logging library, matching the teacher's own use of plain
fmt/log tracing for non-fatal conditions.
*/

package main

import (
	"fmt"
	"log"
)

type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Component, e.Reason)
}

func newConfigError(component, reason string) error {
	return &ConfigError{Component: component, Reason: reason}
}

type ProtocolError struct {
	Component string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %s", e.Component, e.Reason)
}

func newProtocolError(component, reason string) error {
	return &ProtocolError{Component: component, Reason: reason}
}

type StateError struct {
	Component string
	Reason    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error in %s: %s", e.Component, e.Reason)
}

func newStateError(component, reason string) error {
	return &StateError{Component: component, Reason: reason}
}

var traceEnabled = false

// trace logs a non-fatal diagnostic. Gated by Config.Trace so that a
// conforming build stays silent (the core emits no logging sink by
// default, per spec section 6).
func trace(format string, args ...any) {
	if !traceEnabled {
		return
	}
	log.Printf(format, args...)
}

// absorbStateError logs a StateError and continues, per the propagation
// policy in spec section 7: these are never fatal to RunUntilVBlank.
func absorbStateError(err error) {
	if err == nil {
		return
	}
	trace("absorbed: %v", err)
}
