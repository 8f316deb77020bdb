package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeTransport
	ErrorTypeIdentityMismatch
	ErrorTypeIntegrity
	ErrorTypeDuplicate
	ErrorTypeDataIntegrity
	ErrorTypeNotFound
	ErrorTypeConfiguration
	ErrorTypeFileSystem
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeTransport:
		return "TRANSPORT"
	case ErrorTypeIdentityMismatch:
		return "IDENTITY_MISMATCH"
	case ErrorTypeIntegrity:
		return "INTEGRITY"
	case ErrorTypeDuplicate:
		return "DUPLICATE"
	case ErrorTypeDataIntegrity:
		return "DATA_INTEGRITY"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	default:
		return "UNKNOWN"
	}
}

// FieldError is a single schema violation inside a fetched document.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// Error represents an enhanced error with context and suggestions
type Error struct {
	Type        ErrorType         `json:"type"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Cause       error             `json:"cause,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Fields      []FieldError      `json:"fields,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Stack       []string          `json:"stack,omitempty"`
	Retryable   bool              `json:"retryable"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.String())
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithFields attaches field-level validation failures.
func (e *Error) WithFields(fields []FieldError) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *Error) WithSuggestions(suggestions []string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// SetRetryable marks the error as retryable or not
func (e *Error) SetRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// FormatDetailed returns a detailed error message with context and suggestions
func (e *Error) FormatDetailed() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%s error [%s]: %s\n", e.Type.String(), e.Code, e.Message))

	if len(e.Fields) > 0 {
		builder.WriteString("\nInvalid fields:\n")
		for _, f := range e.Fields {
			builder.WriteString(fmt.Sprintf("   %s\n", f.String()))
		}
	}

	if len(e.Context) > 0 {
		builder.WriteString("\nContext:\n")
		for key, value := range e.Context {
			builder.WriteString(fmt.Sprintf("   %s: %s\n", key, value))
		}
	}

	if e.Cause != nil {
		builder.WriteString(fmt.Sprintf("\nUnderlying cause: %v\n", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		builder.WriteString("\nSuggestions:\n")
		for _, suggestion := range e.Suggestions {
			builder.WriteString(fmt.Sprintf("   - %s\n", suggestion))
		}
	}

	if e.Retryable {
		builder.WriteString("\nThis operation can be retried\n")
	}

	return builder.String()
}

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Stack:     captureStack(),
	}
}

// WrapError wraps an existing error with Error
func WrapError(err error, errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Stack:     captureStack(),
	}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType reports whether any error in err's chain is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// captureStack captures the current stack trace
func captureStack() []string {
	var stack []string

	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		if strings.Contains(fn.Name(), "corehub") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}

	return stack
}

// Common error constructors

// NewValidationError creates a schema validation error for the document at url.
func NewValidationError(url string, fields []FieldError) *Error {
	return NewError(ErrorTypeValidation, "SCHEMA_VIOLATION", "document failed schema validation").
		WithContext("url", url).
		WithFields(fields).
		WithSuggestion("Report the problem to the catalog maintainer")
}

// NewTransportError creates a network or decoding error
func NewTransportError(code, message string) *Error {
	return NewError(ErrorTypeTransport, code, message).
		SetRetryable(true).
		WithSuggestions([]string{
			"Check your internet connection",
			"Verify the catalog server is accessible",
		})
}

// NewIdentityMismatchError reports that a fetched record declares a
// different unique name than the one it was looked up under.
func NewIdentityMismatchError(kind, expected, actual string) *Error {
	return NewError(ErrorTypeIdentityMismatch, "UNIQUE_NAME_MISMATCH",
		fmt.Sprintf("%s unique name mismatch: expected %q, got %q", kind, expected, actual)).
		WithContext("expected", expected).
		WithContext("actual", actual)
}

// NewIntegrityError creates an error for a downloaded file that does not
// match its declared size, hash or signature.
func NewIntegrityError(code, message string) *Error {
	return NewError(ErrorTypeIntegrity, code, message).
		WithSuggestion("Retry the download or report the release to the catalog maintainer")
}

// NewDuplicateError creates an error for a record that already exists.
func NewDuplicateError(code, message string) *Error {
	return NewError(ErrorTypeDuplicate, code, message)
}

// NewDataIntegrityError reports local storage in an inconsistent state.
func NewDataIntegrityError(code, message string) *Error {
	return NewError(ErrorTypeDataIntegrity, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *Error {
	return NewError(ErrorTypeConfiguration, code, message).
		WithSuggestions([]string{
			"Check the configuration file syntax",
			"Run 'corehub config init' to regenerate configuration",
		})
}

// NewFileSystemError creates a filesystem error
func NewFileSystemError(code, message string) *Error {
	return NewError(ErrorTypeFileSystem, code, message).
		WithSuggestions([]string{
			"Check file permissions",
			"Verify disk space availability",
		})
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string) *Error {
	return NewError(ErrorTypeNotFound, code, message)
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging
type Logger interface {
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle records err and logs it. Errors that are not *Error are wrapped as
// UNKNOWN; the resulting *Error is returned.
func (eh *ErrorHandler) Handle(err error) *Error {
	if err == nil {
		return nil
	}

	e, ok := As(err)
	if !ok {
		e = WrapError(err, ErrorTypeUnknown, "UNKNOWN", "operation failed")
	}

	if eh.logger != nil {
		eh.logger.Error("%s [%s] %s", e.Type.String(), e.Code, e.Error())
		for key, value := range e.Context {
			eh.logger.Debug("error context: %s = %s", key, value)
		}
	}

	return e
}

var globalErrorHandler *ErrorHandler

// InitGlobalErrorHandler initializes the global error handler
func InitGlobalErrorHandler(logger Logger) {
	globalErrorHandler = NewErrorHandler(logger)
}

// GetGlobalErrorHandler returns the global error handler
func GetGlobalErrorHandler() *ErrorHandler {
	if globalErrorHandler == nil {
		globalErrorHandler = NewErrorHandler(nil)
	}
	return globalErrorHandler
}

// Handle handles an error using the global error handler
func Handle(err error) *Error {
	return GetGlobalErrorHandler().Handle(err)
}
