package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error handling.
const (
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeFetch          = "FETCH_ERROR"
	ErrCodePeriodNotFound = "PERIOD_NOT_FOUND"
	ErrCodeDecryption     = "DECRYPTION_ERROR"
	ErrCodeInvalidRecord  = "INVALID_RECORD"
	ErrCodeServerError    = "SERVER_ERROR"
)

// Sentinel errors
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrPeriodNotFound   = errors.New("period not found")
	ErrDecryptionFailed = errors.New("invalid key or corrupted data")
	ErrNoSecret         = errors.New("no secret available")
	ErrInvalidRecord    = errors.New("period record has no metrics")
	ErrInvalidSnapshot  = errors.New("invalid snapshot document")
	ErrCremaAbsent      = errors.New("crema data absent")
)

// APIError represents an error body returned by the live endpoints.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// ConfigurationError reports an invalid configuration value. It is raised
// immediately at construction or mode switch time.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// FetchError is a network failure or a non-success HTTP status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PeriodNotFoundError is returned when neither the requested period nor any
// fallback is present in the snapshot.
type PeriodNotFoundError struct {
	Period    string
	Available []string
}

func (e *PeriodNotFoundError) Error() string {
	return fmt.Sprintf("period %q not found (available: %s)", e.Period, strings.Join(e.Available, ", "))
}

func (e *PeriodNotFoundError) Unwrap() error {
	return ErrPeriodNotFound
}

// DecryptionError represents a decryption failure.
type DecryptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decrypt %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to its structured code. Unknown errors map to
// ErrCodeServerError.
func ErrorCode(err error) string {
	var (
		cfgErr    *ConfigurationError
		fetchErr  *FetchError
		periodErr *PeriodNotFoundError
		decErr    *DecryptionError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfig
	case errors.As(err, &fetchErr):
		return ErrCodeFetch
	case errors.As(err, &periodErr):
		return ErrCodePeriodNotFound
	case errors.As(err, &decErr):
		return ErrCodeDecryption
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, ErrInvalidSnapshot):
		return ErrCodeInvalidRecord
	default:
		return ErrCodeServerError
	}
}
