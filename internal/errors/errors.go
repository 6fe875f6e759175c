package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
	CodeInvalidOperation  ErrorCode = "INVALID_OPERATION"
	CodeUploadFailed      ErrorCode = "UPLOAD_FAILED"
	CodeCancelled         ErrorCode = "CANCELLED"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound is the error for a missing upload record.
func NotFound(entity, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// CodeOf returns the code carried by err, or CodeInternalError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// HTTPStatus maps an error to the status the local API answers with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeInvalidOperation:
		return http.StatusConflict
	case CodeUploadFailed:
		return http.StatusBadGateway
	case CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
