package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Hard errors: the run aborts before any destructive write.
	ErrTypeMissingInput  ErrorType = "MISSING_INPUT"
	ErrTypeEmptyCalendar ErrorType = "EMPTY_CALENDAR"

	// Soft: counted in the run diagnostics, never returned from a run.
	ErrTypeEmptySeries      ErrorType = "EMPTY_SERIES"
	ErrTypeUnknownSymbol    ErrorType = "UNKNOWN_SYMBOL"
	ErrTypeStaleWindow      ErrorType = "STALE_WINDOW"
	ErrTypeDuplicateSession ErrorType = "DUPLICATE_SESSION"

	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// Sentinels for errors.Is. AppError.Is matches on Type, so any AppError of
// the same type compares equal to its sentinel.
var (
	ErrMissingInput         = &AppError{Type: ErrTypeMissingInput, Message: "required input missing"}
	ErrMissingCalendarInput = &AppError{Type: ErrTypeEmptyCalendar, Message: "no business-day evidence and no persisted calendar"}
	ErrEmptyCalendar        = &AppError{Type: ErrTypeEmptyCalendar, Message: "calendar has no sessions"}
	ErrEmptySeries          = &AppError{Type: ErrTypeEmptySeries, Message: "series aligned to zero sessions"}
	ErrUnknownSymbol        = &AppError{Type: ErrTypeUnknownSymbol, Message: "symbol not in registry"}
	ErrStaleWindow          = &AppError{Type: ErrTypeStaleWindow, Message: "event outside symbol validity window"}
	ErrDuplicateSession     = &AppError{Type: ErrTypeDuplicateSession, Message: "duplicate symbol session"}
	ErrNotFound             = &AppError{Type: ErrTypeNotFound, Message: "not found"}
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewMissingInputError reports an absent input file or directory.
func NewMissingInputError(path string, cause error) *AppError {
	return NewAppError(ErrTypeMissingInput, fmt.Sprintf("required input %s missing", path), cause).
		WithContext("path", path)
}

// NewMissingColumnError reports a mapped column absent from a feed header.
func NewMissingColumnError(path, column string) *AppError {
	return NewAppError(ErrTypeMissingInput, fmt.Sprintf("column %q missing from %s", column, path), nil).
		WithContext("path", path).
		WithContext("column", column)
}

// NewEmptySeriesError reports a symbol that aligned to zero sessions.
func NewEmptySeriesError(symbol string) *AppError {
	return NewAppError(ErrTypeEmptySeries, fmt.Sprintf("symbol %s has no recoverable sessions", symbol), nil).
		WithContext("symbol", symbol)
}

// NewUnknownSymbolError reports an event whose sid the registry does not hold.
func NewUnknownSymbolError(sid int64) *AppError {
	return NewAppError(ErrTypeUnknownSymbol, fmt.Sprintf("sid %d not in registry", sid), nil).
		WithContext("sid", sid)
}

// NewStaleWindowError reports an event dated outside its symbol's window.
func NewStaleWindowError(sid int64, date string) *AppError {
	return NewAppError(ErrTypeStaleWindow, fmt.Sprintf("sid %d has no session on %s", sid, date), nil).
		WithContext("sid", sid).
		WithContext("date", date)
}

// NewDuplicateSessionError reports a second row for the same symbol session.
func NewDuplicateSessionError(symbol, date string) *AppError {
	return NewAppError(ErrTypeDuplicateSession, fmt.Sprintf("duplicate row for %s on %s", symbol, date), nil).
		WithContext("symbol", symbol).
		WithContext("date", date)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsHard reports whether err must abort a run.
func IsHard(err error) bool {
	return errors.Is(err, ErrMissingInput) || errors.Is(err, ErrEmptyCalendar)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
