package core

import "fmt"

type ErrorCode string

const (
	ErrBadRequest    ErrorCode = "WSG_BAD_REQUEST"
	ErrNotFound      ErrorCode = "WSG_NOT_FOUND"
	ErrNoMachine     ErrorCode = "WSG_NO_MACHINE"
	ErrNotAWorkspace ErrorCode = "WSG_NOT_A_WORKSPACE"
	ErrProviderError ErrorCode = "WSG_PROVIDER_ERROR"
	ErrStoreError    ErrorCode = "WSG_STORE_ERROR"
	ErrInternal      ErrorCode = "WSG_INTERNAL"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest:
		return 400
	case ErrNotFound, ErrNoMachine, ErrNotAWorkspace:
		return 404
	case ErrProviderError:
		return 502
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}
