package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so callers can test
// errors.Is(err, ErrValidation) regardless of the message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

const (
	CodeValidation     = "VALIDATION"
	CodeNotFound       = "NOT_FOUND"
	CodeDataCorruption = "DATA_CORRUPTION"
	CodePersistence    = "PERSISTENCE"
	CodeKBInvalid      = "KB_INVALID"
	CodeConfigInvalid  = "CONFIG_INVALID"
)

var (
	ErrValidation     = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound       = &AppError{Code: CodeNotFound, Message: "resource not found"}
	ErrDataCorruption = &AppError{Code: CodeDataCorruption, Message: "persisted data corrupted"}
	ErrPersistence    = &AppError{Code: CodePersistence, Message: "failed to persist state"}
	ErrKBInvalid      = &AppError{Code: CodeKBInvalid, Message: "invalid interaction knowledge base"}
	ErrConfigInvalid  = &AppError{Code: CodeConfigInvalid, Message: "invalid configuration"}
)

func Validation(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func DataCorruption(message string, cause error) *AppError {
	return New(CodeDataCorruption, message, cause)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func IsValidation(err error) bool {
	return GetCode(err) == CodeValidation
}

func IsNotFound(err error) bool {
	return GetCode(err) == CodeNotFound
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
