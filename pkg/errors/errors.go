package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types
var (
	// Startup errors
	ErrPortInUse          = errors.New("address already in use")
	ErrLogFileUnavailable = errors.New("log file unavailable")
	ErrConfigInvalid      = errors.New("invalid config")

	// Measurement errors
	ErrCommandNotFound = errors.New("measurement command not found")
	ErrCommandFailed   = errors.New("measurement command failed")
	ErrCommandTimeout  = errors.New("measurement command timed out")
	ErrMalformedOutput = errors.New("malformed measurement output")
	ErrMissingField    = errors.New("missing field in measurement output")
	ErrInvalidValue    = errors.New("invalid value in measurement output")
	ErrProbePanicked   = errors.New("measurement panicked")

	// Scheduler errors
	ErrSchedulerRunning    = errors.New("scheduler is already running")
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)

// MeasurementError describes a failed measurement cycle.
type MeasurementError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MeasurementError) Error() string {
	var b strings.Builder
	if e.Command != "" {
		fmt.Fprintf(&b, "%s: ", e.Command)
	}
	b.WriteString(e.Err.Error())
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *MeasurementError) Unwrap() error {
	return e.Err
}

// StartupError represents a failure that prevents the process from running.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup (%s): %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ConfigError represents a config-related error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
