package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType categorizes domain errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeProcess     ErrorType = "process"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypePermission  ErrorType = "permission"
	ErrorTypeUnsupported ErrorType = "unsupported"
)

// DomainError is the error type returned by all packages of this module.
// Context carries diagnostic key/value pairs (pid, executable, ...).
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic value and returns the same error for chaining
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// ===== CONSTRUCTORS =====

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewUnsupportedError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeUnsupported, message, cause)
}

// ===== PREDICATES =====

// IsType reports whether any DomainError in err's chain has the given type
func IsType(err error, errorType ErrorType) bool {
	for err != nil {
		var domainErr *DomainError
		if !stderrors.As(err, &domainErr) {
			return false
		}
		if domainErr.Type == errorType {
			return true
		}
		err = domainErr.Cause
	}
	return false
}

func IsValidationError(err error) bool  { return IsType(err, ErrorTypeValidation) }
func IsNotFoundError(err error) bool    { return IsType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool    { return IsType(err, ErrorTypeConflict) }
func IsProcessError(err error) bool     { return IsType(err, ErrorTypeProcess) }
func IsIOError(err error) bool          { return IsType(err, ErrorTypeIO) }
func IsInternalError(err error) bool    { return IsType(err, ErrorTypeInternal) }
func IsTimeoutError(err error) bool     { return IsType(err, ErrorTypeTimeout) }
func IsCancelledError(err error) bool   { return IsType(err, ErrorTypeCancelled) }
func IsPermissionError(err error) bool  { return IsType(err, ErrorTypePermission) }
func IsUnsupportedError(err error) bool { return IsType(err, ErrorTypeUnsupported) }

// Is and As are re-exported so callers importing this package as "errors"
// keep access to the standard helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
