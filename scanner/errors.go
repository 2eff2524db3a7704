package scanner

import (
	"errors"
	"fmt"
)

// ErrorCode is an out-of-band failure reported by the radio and forwarded
// to subscribers through Callback.OnFailed.
type ErrorCode int

const (
	ErrorAlreadyStarted                ErrorCode = 1
	ErrorApplicationRegistrationFailed ErrorCode = 2
	ErrorInternal                      ErrorCode = 3
	ErrorFeatureUnsupported            ErrorCode = 4
	ErrorOutOfHardwareResources        ErrorCode = 5
	ErrorScanningTooFrequently         ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorAlreadyStarted:
		return "ALREADY_STARTED"
	case ErrorApplicationRegistrationFailed:
		return "APPLICATION_REGISTRATION_FAILED"
	case ErrorInternal:
		return "INTERNAL_ERROR"
	case ErrorFeatureUnsupported:
		return "FEATURE_UNSUPPORTED"
	case ErrorOutOfHardwareResources:
		return "OUT_OF_HARDWARE_RESOURCES"
	case ErrorScanningTooFrequently:
		return "SCANNING_TOO_FREQUENTLY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// Registry errors
var (
	ErrAlreadyStarted  = errors.New("scan already started for this callback")
	ErrNotRegistered   = errors.New("callback is not registered")
	ErrRegistryClosed  = errors.New("registry is closed")
	ErrInvalidCallback = errors.New("callback must be a non-nil comparable value")
)

// Construction errors
var (
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrInvalidSettings = errors.New("invalid settings")
)

// FilterError reports a rejected filter field.
type FilterError struct {
	Field string
	Msg   string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s: %s", e.Field, e.Msg)
}

// Is makes errors.Is(err, ErrInvalidFilter) hold for every FilterError.
func (e *FilterError) Is(target error) bool {
	return target == ErrInvalidFilter
}

// SettingsError reports a rejected settings value.
type SettingsError struct {
	Field string
	Value interface{}
	Msg   string
}

func (e *SettingsError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("invalid settings: %s %v", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid settings: %s %v: %s", e.Field, e.Value, e.Msg)
}

// Is makes errors.Is(err, ErrInvalidSettings) hold for every SettingsError.
func (e *SettingsError) Is(target error) bool {
	return target == ErrInvalidSettings
}
