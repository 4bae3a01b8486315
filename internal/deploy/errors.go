package deploy

import (
	"errors"
	"fmt"
)

var (
	// ErrDeployInProgress is returned when Deploy is called while another deploy runs.
	ErrDeployInProgress = errors.New("a deploy is already in progress")
	// ErrInvalidConfiguration classifies settings problems found before any remote call.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ConfigError reports unusable local settings.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidConfiguration, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrInvalidConfiguration, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfiguration, e.Err}
}

// ShortcutError reports a failed shortcut registration. It does not fail the deploy.
type ShortcutError struct {
	Message string
	Err     error
}

func (e *ShortcutError) Error() string {
	switch {
	case e.Err != nil:
		return "shortcut registration failed: " + e.Err.Error()
	case e.Message != "":
		return "shortcut registration failed: " + e.Message
	default:
		return "shortcut registration failed"
	}
}

func (e *ShortcutError) Unwrap() error {
	return e.Err
}

// StageError wraps the cause of a stage that stopped the deploy.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
