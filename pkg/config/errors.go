// Package config parses INI configuration files with access tracking and
// maps the NexMotion library configuration onto typed device, axis and
// group settings.
package config

import (
	"fmt"

	nmcerrors "nexmotion-go/pkg/errors"
)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Code    nmcerrors.Code
	File    string
	Line    int
	Section string
	Option  string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Option != "":
		return fmt.Sprintf("option '%s' in section '%s': %s", e.Option, e.Section, e.Message)
	case e.Section != "":
		return fmt.Sprintf("section '%s': %s", e.Section, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// AsError converts the config error into a coded controller error.
func (e *ConfigError) AsError() *nmcerrors.Error {
	return nmcerrors.Wrap(e, e.Code, "configuration")
}

// NewConfigError creates a new ConfigError with FileBadFormat.
func NewConfigError(section, option, message string) *ConfigError {
	return &ConfigError{
		Code:    nmcerrors.FileBadFormat,
		Section: section,
		Option:  option,
		Message: message,
	}
}

// ErrFileNotFound reports a missing configuration file.
func ErrFileNotFound(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    nmcerrors.FileNotFound,
		File:    path,
		Message: "file does not exist",
		Cause:   cause,
	}
}

// ErrBadFormat reports a syntax error on a given line.
func ErrBadFormat(path string, line int, message string) *ConfigError {
	return &ConfigError{
		Code:    nmcerrors.FileBadFormat,
		File:    path,
		Line:    line,
		Message: message,
	}
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *ConfigError {
	return NewConfigError(section, option, "must be specified")
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *ConfigError {
	return NewConfigError(section, "", "section not found")
}

// ErrInvalidValue returns an error for an invalid value.
func ErrInvalidValue(section, option, value, expected string) *ConfigError {
	return NewConfigError(section, option, fmt.Sprintf("invalid value '%s', expected %s", value, expected))
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *ConfigError {
	return NewConfigError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *ConfigError {
	return NewConfigError(section, option, fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}
