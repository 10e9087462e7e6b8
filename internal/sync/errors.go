package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a sync is requested while another one runs.
	ErrBusy = errors.New("a sync is already running")
	// ErrKilled is the error of a session that was killed.
	ErrKilled = errors.New("sync killed")

	// ErrNoSiteSelected is returned by commands that need an active site.
	ErrNoSiteSelected = &ConfigurationError{Reason: "no site selected"}
	// ErrNoSitesConfigured is returned when the configuration has no sites.
	ErrNoSitesConfigured = &ConfigurationError{Reason: "no sites configured"}
)

// ConfigurationError aborts an operation before any subprocess runs.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// HookFailure reports a pre or post hook that exited non-zero.
type HookFailure struct {
	Stage    string
	ExitCode int
}

func (e *HookFailure) Error() string {
	return fmt.Sprintf("%s failed with exit code %d", e.Stage, e.ExitCode)
}

// TransferFailure reports a transfer that exited non-zero or failed to spawn.
type TransferFailure struct {
	ExitCode int
}

func (e *TransferFailure) Error() string {
	return fmt.Sprintf("transfer failed with exit code %d", e.ExitCode)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
