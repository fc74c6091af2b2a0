package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound             = "NOT_FOUND"
	CodeNotAParticipant      = "NOT_A_PARTICIPANT"
	CodeNotAuthorized        = "NOT_AUTHORIZED"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeAttachmentProcessing = "ATTACHMENT_PROCESSING"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternal             = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// NotAParticipant is returned when the actor is neither an active nor a
// reactivatable member of the conversation.
func NotAParticipant(userID, conversationID string) *AppError {
	return &AppError{
		Code:    CodeNotAParticipant,
		Message: fmt.Sprintf("user %s is not a participant in conversation %s", userID, conversationID),
		Status:  http.StatusForbidden,
	}
}

// NotAuthorized is returned when someone other than the sender tries to
// unsend or delete a message for everyone.
func NotAuthorized(message string) *AppError {
	return &AppError{
		Code:    CodeNotAuthorized,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

func FileTooLarge(category string, size, limit int64) *AppError {
	return &AppError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("%s is %d bytes, maximum allowed is %d bytes", category, size, limit),
		Status:  http.StatusRequestEntityTooLarge,
	}
}

func AttachmentProcessing(message string, err error) *AppError {
	return &AppError{
		Code:    CodeAttachmentProcessing,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
